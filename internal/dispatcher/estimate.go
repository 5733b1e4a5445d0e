package dispatcher

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shaiso/Atelier/internal/domain"
)

// Default estimator values.
const (
	defaultImageUnits = 4.0
	defaultVideoUnits = 8.0

	referencePixels = 512 * 512
	referenceFrames = 16
)

// Estimator оценивает требуемую ёмкость задачи, если вызывающий её не указал.
type Estimator interface {
	Estimate(kind domain.TaskKind, params map[string]any) (float64, error)
}

// EstimatorFunc — адаптер функции к Estimator.
type EstimatorFunc func(kind domain.TaskKind, params map[string]any) (float64, error)

func (f EstimatorFunc) Estimate(kind domain.TaskKind, params map[string]any) (float64, error) {
	return f(kind, params)
}

// BaseEstimator — базовая ёмкость на тип задачи, масштабированная по
// разрешению (width*height относительно 512x512) и, для видео, по
// количеству кадров (frames относительно 16). Меньше базы оценка не бывает.
type BaseEstimator struct {
	ImageUnits float64 // default: 4
	VideoUnits float64 // default: 8
}

// Estimate реализует Estimator.
func (e BaseEstimator) Estimate(kind domain.TaskKind, params map[string]any) (float64, error) {
	var base float64
	switch kind {
	case domain.TaskKindImage:
		base = e.ImageUnits
		if base <= 0 {
			base = defaultImageUnits
		}
	case domain.TaskKindVideo:
		base = e.VideoUnits
		if base <= 0 {
			base = defaultVideoUnits
		}
	default:
		return 0, fmt.Errorf("cannot estimate capacity for kind %q", kind)
	}

	scale := 1.0
	width, okW := numberParam(params, "width")
	height, okH := numberParam(params, "height")
	if okW && okH && width > 0 && height > 0 {
		scale *= max(1, width*height/referencePixels)
	}
	if kind == domain.TaskKindVideo {
		if frames, ok := numberParam(params, "frames"); ok && frames > 0 {
			scale *= max(1, frames/referenceFrames)
		}
	}

	// Округляем до 0.5 единицы вверх.
	return math.Ceil(base*scale*2) / 2, nil
}

// numberParam достаёт числовой параметр независимо от того, пришёл он
// из JSON (float64, json.Number) или из Go-кода (int).
func numberParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

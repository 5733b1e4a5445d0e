package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"

	"github.com/shaiso/Atelier/internal/telemetry"
)

// Максимальная длина тела ответа в тексте ошибки.
const maxErrorBody = 200

// jsonClient — общий HTTP/JSON слой адаптеров.
type jsonClient struct {
	http *http.Client
}

// call выполняет запрос и декодирует JSON-ответ в out (если out != nil).
//
// onStart вызывается один раз, когда запрос полностью записан в соединение.
// HTTP >= 400 возвращается как ErrBackend с телом ответа.
// Ошибки соединения — ErrUnreachable, отмена ctx — ctx.Err().
func (c *jsonClient) call(ctx context.Context, method, url string, body, out any, onStart func()) (int, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	if onStart != nil {
		var once sync.Once
		ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
			WroteRequest: func(info httptrace.WroteRequestInfo) {
				if info.Err == nil {
					once.Do(onStart)
				}
			},
		})
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp.StatusCode, ctxErr
		}
		return resp.StatusCode, fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}

	telemetry.FromContext(ctx).Debug("backend call", "method", method, "url", url, "status", resp.StatusCode)

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("%w: HTTP %d: %s", ErrBackend, resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), maxErrorBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return resp.StatusCode, nil
}

// joinURL склеивает endpoint и путь без двойных слэшей.
func joinURL(endpoint, path string) string {
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// IsConnectivity проверяет, что ошибка вызвана недоступностью бэкенда.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// Package health поддерживает актуальность ёмкости и online-статуса воркеров.
//
// Monitor с фиксированным интервалом опрашивает каждого воркера через
// его транспортный адаптер. Пробы выполняются параллельно и независимо:
// медленный воркер не задерживает остальных и не блокирует Dispatcher.
// После каждого раунда устаревшие воркеры переводятся в offline.
package health

// Package stats считает пропускную способность оркестратора.
//
// Aggregator получает события жизненного цикла задач от Dispatcher'а
// через буферизованный канал, хранит ограниченное скользящее окно
// и публикует StatsSnapshot подписчикам: на каждое событие и/или по
// расписанию. Aggregator никогда не тормозит Dispatcher: при переполнении
// буфера самое старое событие отбрасывается с предупреждением.
//
// Статистика только наблюдаемая: без событий снимок нулевой.
package stats

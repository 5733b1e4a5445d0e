// Package dispatcher управляет жизненным циклом генерационных задач.
//
// Dispatcher отвечает за:
//   - Admission control по ёмкости воркеров
//   - Очередь задач (уровни приоритета, FIFO внутри уровня)
//   - Выбор воркера через стратегию распределения
//   - Вызов транспортного адаптера и отслеживание статуса задачи
//   - Отмену задач с ограниченным grace-периодом
//
// Всё изменяемое состояние (реестр воркеров, очередь, таблица задач)
// принадлежит одной горутине. Публичные методы отправляют ей команды
// через канал и ждут ответа, поэтому вызывающие никогда не берут блокировок.
package dispatcher

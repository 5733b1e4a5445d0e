// Package cli реализует инструмент командной строки Atelier.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Atelier API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Atelier API. Инкапсулирует HTTP-запросы,
// разбор ответов (data, list, error) и чтение потока событий (SSE).
//
//	client := cli.NewClient("http://localhost:8083")
//	task, err := client.SubmitTask(cli.SubmitTaskRequest{Kind: "image"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr:
// atelier task list --json | jq .
//
// ## Commands
//
//   - task: submit, list, show, cancel
//   - worker: list, register, show, remove
//   - stats
//   - events
//
// Каждая группа создаётся фабричной функцией (NewTaskCmd и т.д.),
// принимающей clientFn и outputFn: Client и Output создаются лениво,
// после разбора PersistentFlags.
package cli

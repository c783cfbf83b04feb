// Package cli реализует инструмент командной строки bourreau.
//
// # Обзор
//
// CLI — клиентская утилита для admin API воркера. Работает через HTTP
// и не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для admin API. Разбирает обёртки ответов ({"data": ...},
// {"data": [...], "total": N}, {"error": {...}}) и превращает ошибки API
// в error.
//
//	client := cli.NewClient("http://localhost:8082")
//	w, err := client.WorkerStatus()
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные идут в stdout, сообщения (Success/Error) в stderr:
//
//	bourreau task list --json | jq .
//
// ## Commands
//
//   - worker: status, wake, stop
//   - task: list, show, submit
//   - message: list
//
// Каждая группа создаётся фабрикой (NewWorkerCmd, NewTaskCmd, NewMessageCmd), которая
// принимает clientFn и outputFn: Client и Output создаются лениво,
// после разбора PersistentFlags.
package cli

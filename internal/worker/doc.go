// Package worker продвигает tasks ресурса по жизненному циклу.
//
// # Обзор
//
// Worker — долгоживущий процесс одного вычислительного ресурса. Он:
//
//   - Периодически находит tasks ресурса в статусах New, Queued, On CPU, Data Ready
//   - Перечитывает каждую task и синхронизирует её статус с кластером
//   - Выполняет переход New → Queued и Data Ready → Completed
//   - Уведомляет владельца о финальном статусе task
//   - Засыпает, когда работы нет, и просыпается по сигналу
//
// Несколько процессов воркеров могут обслуживать один ресурс. Блокировок
// воркер не держит: перед каждым действием task перечитывается, а guard
// перехода в хранилище отклоняет переход, если статус уже сменился.
//
// # Цикл
//
// RunCycle — один проход по tasks. Run — внешний цикл:
//
//	w := worker.New(worker.Config{
//	    Store:      taskRepo,
//	    Lifecycle:  manager,
//	    Notifier:   messenger,
//	    ResourceID: resourceID,
//	    Logger:     logger,
//	})
//
//	go w.HandleSignals(ctx, cancel)
//	if err := w.Run(ctx); err != nil {
//	    // дефект: процесс должен завершиться
//	}
//
// Если tasks нет, воркер уходит в idle-sleep не дольше потолка (1h по
// умолчанию): хранилище не опрашивается, но раз в потолок цикл всё равно
// выполняется. Wake (SIGUSR1, событие task.submitted, POST /api/v1/worker/wake)
// прерывает сон. Stop (SIGINT/SIGTERM, POST /api/v1/worker/stop) проверяется
// между tasks и никогда не прерывает начатый переход.
//
// # Ошибки
//
// ProcessTask различает три исхода:
//   - Гонка — переход вернул domain.Transition с OutcomeRejected. Debug-лог, без уведомления.
//   - Ошибка task — переход сам перевёл её в Failed…; владелец получает уведомление.
//   - Дефект — переход вернул error или запаниковал. Запись FATAL со стеком,
//     ошибка ErrDefect возвращается из Run, процесс завершается.
package worker

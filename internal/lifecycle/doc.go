// Package lifecycle реализует переходы жизненного цикла task.
//
// Переходы:
//   - SetupAndSubmitJob: New → Setting Up → Queued | Failed To Setup
//   - PostProcess:       Data Ready → Post Processing → Completed | Failed To PostProcess
//   - UpdateStatus:      Queued → On CPU → Data Ready | Failed On Cluster (по данным кластера)
//
// Каждый шаг статуса проходит через guard хранилища (UPDATE … WHERE status = from),
// поэтому несколько воркеров могут безопасно работать с одними tasks.
package lifecycle

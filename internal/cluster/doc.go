// Package cluster предоставляет backends планировщика ресурса.
//
// Воркер не управляет jobs напрямую: он отправляет job через Backend
// при переходе New → Queued и затем только опрашивает его состояние,
// чтобы отразить Queued → On CPU → Data Ready в БД.
package cluster

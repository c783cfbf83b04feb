// Package programs содержит программы, которые выполняют tasks.
//
// Программа знает, как подготовить рабочий каталог (Setup), какие команды
// отправить в кластер (Commands) и как сохранить результаты (SaveResults).
// Жизненный цикл вызывает её на переходах New → Queued и Data Ready → Completed.
//
// Реестр по умолчанию: shell, diagnostics.
package programs

package domain

import "strings"

// TaskStatus — статус task в жизненном цикле Bourreau.
//
// Жизненный цикл:
//
//	New → Setting Up → Queued → On CPU → Data Ready → Post Processing → Completed
//	    ↘ Failed To Setup  ↘ Failed On Cluster      ↘ Failed To PostProcess
//
// Переходы New → Queued и Data Ready → Completed выполняет воркер,
// Queued → On CPU → Data Ready двигает кластер (воркер их только наблюдает).
type TaskStatus string

const (
	// TaskStatusNew — task создан и ждёт подготовки.
	TaskStatusNew TaskStatus = "New"

	// TaskStatusSettingUp — воркер готовит рабочий каталог и отправляет job.
	TaskStatusSettingUp TaskStatus = "Setting Up"

	// TaskStatusQueued — job отправлен в кластер и стоит в очереди.
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusOnCPU — job выполняется на кластере.
	TaskStatusOnCPU TaskStatus = "On CPU"

	// TaskStatusDataReady — job завершился, результаты ждут постобработки.
	TaskStatusDataReady TaskStatus = "Data Ready"

	// TaskStatusPostProcessing — воркер сохраняет результаты.
	TaskStatusPostProcessing TaskStatus = "Post Processing"

	// TaskStatusCompleted — task успешно завершён.
	TaskStatusCompleted TaskStatus = "Completed"

	// TaskStatusFailedToSetup — подготовка или отправка job не удалась.
	TaskStatusFailedToSetup TaskStatus = "Failed To Setup"

	// TaskStatusFailedOnCluster — кластер сообщил об ошибке job.
	TaskStatusFailedOnCluster TaskStatus = "Failed On Cluster"

	// TaskStatusFailedToPostProcess — постобработка не удалась.
	TaskStatusFailedToPostProcess TaskStatus = "Failed To PostProcess"
)

// failedPrefix — общий префикс всех статусов ошибки.
const failedPrefix = "Failed"

// ActionableStatuses возвращает статусы, для которых воркер может
// что-то сделать: New, Queued, On CPU, Data Ready.
func ActionableStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusNew,
		TaskStatusQueued,
		TaskStatusOnCPU,
		TaskStatusDataReady,
	}
}

// AllStatuses возвращает все известные статусы.
func AllStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusNew,
		TaskStatusSettingUp,
		TaskStatusQueued,
		TaskStatusOnCPU,
		TaskStatusDataReady,
		TaskStatusPostProcessing,
		TaskStatusCompleted,
		TaskStatusFailedToSetup,
		TaskStatusFailedOnCluster,
		TaskStatusFailedToPostProcess,
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// IsKnown возвращает true, если статус входит в фиксированный набор.
func (s TaskStatus) IsKnown() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// IsActionable возвращает true, если воркер должен рассматривать task.
func (s TaskStatus) IsActionable() bool {
	switch s {
	case TaskStatusNew, TaskStatusQueued, TaskStatusOnCPU, TaskStatusDataReady:
		return true
	default:
		return false
	}
}

// IsFailed возвращает true для любого статуса "Failed…".
func (s TaskStatus) IsFailed() bool {
	return strings.HasPrefix(string(s), failedPrefix)
}

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s.IsFailed()
}

// validTransitions — разрешённые переходы статусов.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusNew:            {TaskStatusSettingUp},
	TaskStatusSettingUp:      {TaskStatusQueued, TaskStatusFailedToSetup},
	TaskStatusQueued:         {TaskStatusOnCPU, TaskStatusDataReady, TaskStatusFailedOnCluster},
	TaskStatusOnCPU:          {TaskStatusDataReady, TaskStatusFailedOnCluster},
	TaskStatusDataReady:      {TaskStatusPostProcessing},
	TaskStatusPostProcessing: {TaskStatusCompleted, TaskStatusFailedToPostProcess},
}

// CanTransitionTo возвращает true, если переход из s в next разрешён.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseTaskStatus парсит строку в TaskStatus.
// Возвращает false, если статус неизвестен.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	status := TaskStatus(s)
	return status, status.IsKnown()
}

package valueobject

// RunOutcome описывает состояние запуска пакета измерений
type RunOutcome string

const (
	RunIdle            RunOutcome = "idle"
	RunRunning         RunOutcome = "running"
	RunCompleted       RunOutcome = "completed"
	RunPartiallyFailed RunOutcome = "partially_failed"
	RunTotallyFailed   RunOutcome = "totally_failed"
)

// ClassifyRun определяет терминальный исход по счетчикам.
// attempted < total возможен только при прерывании по watchdog.
func ClassifyRun(total, completed, failed int) RunOutcome {
	switch {
	case total == 0:
		return RunCompleted
	case completed == 0:
		return RunTotallyFailed
	case failed == 0 && completed == total:
		return RunCompleted
	default:
		return RunPartiallyFailed
	}
}

// IsTerminal сообщает, что запуск завершен
func (o RunOutcome) IsTerminal() bool {
	switch o {
	case RunCompleted, RunPartiallyFailed, RunTotallyFailed:
		return true
	default:
		return false
	}
}

// RunTrigger показывает источник запуска
type RunTrigger string

const (
	TriggerManual    RunTrigger = "manual"
	TriggerScheduled RunTrigger = "scheduled"
	TriggerCLI       RunTrigger = "cli"
)

package wizard

import "time"

// Timer 是 AfterFunc 返回的可取消计时器。
type Timer interface {
	Stop() bool
}

// Clock 抽象延时调度，测试中替换为可手动推进的时钟。
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock 基于 time.AfterFunc 的默认实现
func RealClock() Clock {
	return realClock{}
}

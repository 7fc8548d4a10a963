package cleanup

import "weak"

// ScheduleWeak queues a cleanup of resource while holding it only through a
// weak pointer. If resource is garbage collected before the cleanup becomes
// due, the entry is dropped without running anything. The cleanup function,
// when given, must not capture resource or it will never be collected.
func ScheduleWeak[T any](s *Scheduler, resource *T, optFns ...func(o *ScheduleOptions)) (string, error) {
	wp := weak.Make(resource)
	return s.schedule(func() (any, bool) {
		p := wp.Value()
		if p == nil {
			return nil, false
		}
		return p, true
	}, true, optFns)
}

// Package engine runs the achievement and notification workers.
//
// One State value holds the catalog, the notification queue, and the enabled
// flag behind a single mutex. Four workers share it: the Evaluator unlocks
// achievements whose counters reach their targets, the Dispatcher drains one
// queued notification per tick and delivers it outside the lock, the
// ActivityWorker advances the compositor counter, and the ChangeWatcher runs
// extra evaluations when a watched resource changes. Engine wires them
// together and owns start, stop, and the final save.
package engine

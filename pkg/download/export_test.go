package download

// SetBeforeEnqueue installs fn to run after a unit is tracked and before its task is queued.
func SetBeforeEnqueue(e *Engine, fn func(*DownloadingPackage)) {
	e.beforeEnqueue = fn
}

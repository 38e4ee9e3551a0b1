package app

// CloudBuilds reports how often the view analyzed its answers.
func (v *View) CloudBuilds() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cloudBuilds
}

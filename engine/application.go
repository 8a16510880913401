package engine

type ApplicationConfig struct {
	// Path of the TOML config file. Empty runs on the defaults and disables
	// config reloading.
	ConfigPath string
	// The application name used in windowing. Overrides window.title when set.
	Name string
}

// Package config loads the ForesightX JSON configuration, fills in defaults
// relative to the configuration file, and resolves runtime settings such as
// MOVEMENT_PRIVATE_KEY from the settings map or the environment.
package config

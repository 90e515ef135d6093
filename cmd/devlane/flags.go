package main

import "time"

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

// LaunchFlags holds flags for dev, build and preview.
type LaunchFlags struct {
	Root   string
	Host   string
	Port   int
	OutDir string
	Engine string
	// API connection; empty means run embedded
	APIUrl     string
	APITimeout time.Duration
}

// StopFlags holds flags for the stop command.
type StopFlags struct {
	Project    string
	Action     string
	APIUrl     string
	APITimeout time.Duration
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen        string
	BasePath      string
	MetricsListen string
}

package main

import "github.com/banshee-data/sourcemeter/internal/monitoring"

var logf = monitoring.Component("main")

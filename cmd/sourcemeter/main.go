// Command sourcemeter drives I-V sweeps on a Keithley 2400 SourceMeter,
// either headless or behind an HTTP control panel.
package main

func main() {
	Execute()
}

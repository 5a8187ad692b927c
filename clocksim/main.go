// Command clocksim runs logical clock simulations and checks their traces.
package main

import "github.com/sarchlab/clocksim/clocksim/cmd"

func main() {
	cmd.Execute()
}

package banner

import "fmt"

const Version = "1.0.0"

func Print() {
	banner := `
   _  __    ____
  | |/ /   / __ \____ ___  __
  |   /___/ /_/ / __ '/ / / /
 /   |___/ _, _/ /_/ / /_/ /
/_/|_|  /_/ |_|\__,_/\__, /
                    /____/   v%s - Telemetry Ingester
    `
	fmt.Printf(banner, Version)
	fmt.Println("\n------------------------------------------------")
}

package main

import "github.com/GeraldWambui/OrderServiceTechnicalAssesment/cmd"

func main() {
	cmd.Execute()
}

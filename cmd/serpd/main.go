package main

import "github.com/scorchedearth/scorched/util"

func main() {
	if err := Execute(); err != nil {
		util.Fatalln("Error:", err)
	}
}

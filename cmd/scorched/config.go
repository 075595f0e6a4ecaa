package main

import (
	"os"

	"github.com/ogier/pflag"

	"github.com/scorchedearth/scorched/auth"
	"github.com/scorchedearth/scorched/util"
)

const defaultRelay = "localhost:1337"

// Config stores values related to program configuration
type Config struct {
	relay    string
	rounds   int
	logLevel string

	hosting bool
	secret  []byte
}

func newConfig() Config {
	config := Config{}

	pflag.Usage = printUsage

	relay := pflag.StringP("relay", "r", defaultRelay, "address of the relay, host:port")
	rounds := pflag.IntP("rounds", "n", 3, "number of rounds to play")
	logLevel := pflag.String("log-level", "info", "log level")

	pflag.Parse()
	config.relay = *relay
	config.rounds = *rounds
	config.logLevel = *logLevel

	if config.rounds < 1 {
		util.Eprintln("Need to play at least one round")
		os.Exit(1)
	}

	args := pflag.Args()
	if len(args) < 1 {
		util.Eprintln("Too few arguments")
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "host":
		secret, err := auth.GenerateSecret()
		if err != nil {
			util.Fatalln("Error generating room ID:", err)
		}
		config.hosting = true
		config.secret = secret
	case "join":
		if len(args) < 2 {
			util.Eprintln("Please include the room ID you were given")
			printUsage()
			os.Exit(1)
		}
		if len(args[1]) != auth.SecretSize {
			util.Eprintf("Room ID must be %d digits\n", auth.SecretSize)
			os.Exit(1)
		}
		config.secret = []byte(args[1])
	default:
		util.Eprintln("Unknown command:", args[0])
		printUsage()
		os.Exit(1)
	}

	return config
}

func printUsage() {
	util.Eprintln("Usage: " + os.Args[0] + " [OPTION]... host")
	util.Eprintln("       " + os.Args[0] + " [OPTION]... join ROOM_ID")
	util.Eprintln("Flags:")
	pflag.PrintDefaults()
	util.Eprintln("Example:")
	util.Eprintln("    " + os.Args[0] + " -r relay.example.com:1337 join 12345678901234567890123456789012")
}

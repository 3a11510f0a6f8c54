/*
Ttserver compiles a dialog script and serves conversations with it over HTTP.

Usage:

	ttserver [flags] [SCRIPT_FILE ...]
	ttserver [flags] -c CONFIG_FILE

The script files named on the command line are concatenated in order and
compiled into one dialog program. Any problem with the script is reported
with the offending line and the server refuses to start. Once started, the
server listens for HTTP requests; by default on localhost:8080. This can be
changed with the --listen/-l flag (or config via environment var). The flag
argument must be either a full address with port, such as "192.168.0.2:6001",
or just the port preceeded by a colon, such as ":6001".

If a token secret is not given, one will be automatically generated. As a
consequence, in this mode of operation all session tokens are rendered
invalid as soon as the server shuts down. This is suitable for testing, but
must be given via config file, CLI flag, or environment variable if running
in production.

The flags are:

	-v, --version
		Give the current version of the TunaTalk server and then exit.

	-c, --config CONFIG_FILE
		Load server settings from the given file before applying any other
		flags. Files ending in .toml are read as TOML; anything else is read
		as JSON.

	-l, --listen LISTEN_ADDRESS
		Listen on the given address. Must be in BIND_ADDRESS:PORT or :PORT
		format. If not given, will default to the value of environment
		variable TUNATALK_LISTEN_ADDRESS, and if that is not given, will
		default to localhost:8080.

	-s, --secret TOKEN_SECRET
		Use the provided secret for signing session tokens. If there are less
		than 32 bytes in the secret, it will be repeated until it is. The
		maximum size is 64 bytes. If not given, will default to the value of
		environment variable TUNATALK_TOKEN_SECRET. If no secret is specified
		or an empty secret is given, a random secret will be automatically
		generated.

	--db DB_FILE
		Store user variables in a sqlite database at the given path. If not
		given, will default to the value of environment variable
		TUNATALK_DATABASE. If no path is specified or an empty one is given,
		variables are kept in memory and lost at shutdown.

	--keep-db
		Reuse an existing database file instead of recreating it at startup.
		Only safe when the script's variable definitions have not changed.
*/
package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/dekarrin/tunatalk/internal/version"
	"github.com/dekarrin/tunatalk/server"
	"github.com/spf13/pflag"
)

const (
	EnvListen = "TUNATALK_LISTEN_ADDRESS"
	EnvSecret = "TUNATALK_TOKEN_SECRET"
	EnvDB     = "TUNATALK_DATABASE"
)

var (
	flagVersion = pflag.BoolP("version", "v", false, "Give the current version of TunaTalk server and then exit.")
	flagConfig  = pflag.StringP("config", "c", "", "Load server settings from the given file.")
	flagListen  = pflag.StringP("listen", "l", "", "Listen on the given address.")
	flagSecret  = pflag.StringP("secret", "s", "", "Use the given secret for token generation.")
	flagDB      = pflag.String("db", "", "Store user variables in a sqlite DB at the given path.")
	flagKeepDB  = pflag.Bool("keep-db", false, "Reuse an existing database file instead of recreating it.")
)

func main() {
	pflag.Parse()

	if *flagVersion {
		fmt.Printf("%s (TunaTalk v%s)\n", version.ServerCurrent, version.Current)
		return
	}

	var cfg server.Config
	if *flagConfig != "" {
		var err error
		cfg, err = server.LoadConfig(*flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err.Error())
			os.Exit(1)
		}
	}

	// script files on the command line come after any from the config file
	cfg.Sources = append(cfg.Sources, pflag.Args()...)
	if len(cfg.Sources) == 0 {
		fmt.Fprintf(os.Stderr, "No script files given\nDo -h for help.\n")
		os.Exit(1)
	}

	// get address info
	listenAddr := os.Getenv(EnvListen)
	if pflag.Lookup("listen").Changed {
		listenAddr = *flagListen
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}

	// look at db path
	dbPath := os.Getenv(EnvDB)
	if pflag.Lookup("db").Changed {
		dbPath = *flagDB
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if pflag.Lookup("keep-db").Changed {
		cfg.KeepDB = *flagKeepDB
	}

	// get token secret
	tokSecStr := os.Getenv(EnvSecret)
	if pflag.Lookup("secret").Changed {
		tokSecStr = *flagSecret
	}
	if tokSecStr != "" {
		cfg.Key = tokSecStr
	}
	// was a secret given anywhere?
	if cfg.Key != "" {
		// if so, pad it out to the minimum size
		tokSecret := []byte(cfg.Key)

		for len(tokSecret) < server.MinSecretSize {
			doubledTokSecret := make([]byte, len(tokSecret)*2)
			copy(doubledTokSecret, tokSecret)
			copy(doubledTokSecret[len(tokSecret):], tokSecret)
			tokSecret = doubledTokSecret
		}

		if len(tokSecret) > server.MaxSecretSize {
			// keys would be chopped at 64, so rather than the user thinking
			// they have more security by giving a longer key, refuse to start.
			fmt.Fprintf(os.Stderr, "Token secret is %d bytes, but it must be <= %d bytes\nDo -h for help.\n", len(tokSecret), server.MaxSecretSize)
			os.Exit(1)
		}

		cfg.Key = string(tokSecret)
	} else {
		// generate a new one

		// use all 64 possible bytes if doing a generated secret
		tokSecret := make([]byte, server.MaxSecretSize)
		_, err := rand.Read(tokSecret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not generate token secret: %s\n", err.Error())
			os.Exit(1)
		}
		cfg.Key = string(tokSecret)

		// yell at the user bc they should know their secret might be bad
		log.Printf("WARN  Using generated token secret; all tokens issued will become invalid at shutdown")
	}

	cfg = cfg.FillDefaults()

	// configuration complete, initialize the server
	tts, err := server.New(cfg)
	if err != nil {
		gramErr := &script.GrammarError{}
		if errors.As(err, &gramErr) {
			fmt.Fprintf(os.Stderr, "%s\n", gramErr.FullMessage())
			os.Exit(1)
		}
		log.Fatalf("FATAL could not start server: %s", err.Error())
	}
	defer tts.Close()
	log.Printf("DEBUG Server initialized")

	// okay, now actually launch it
	log.Printf("INFO  Starting TunaTalk server %s...", version.ServerCurrent)
	log.Fatalf("FATAL %v", tts.ServeForever(cfg.Listen))
}

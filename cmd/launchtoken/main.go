// cmd/launchtoken mints launcher tokens for schedulers and operators, or
// generates a new key pair with -genkey.
package main

import (
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"

	"github.com/jason-s-yu/picofermibagel/internal/auth"
	"github.com/jason-s-yu/picofermibagel/internal/config"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	name := flag.String("name", "operator", "launcher name recorded in the token subject")
	genkey := flag.String("genkey", "", "write a new key pair to <path> and <path>.pub, then exit")
	flag.Parse()

	if *genkey != "" {
		if err := writeKeyPair(*genkey); err != nil {
			logrus.Fatalf("genkey: %v", err)
		}
		fmt.Printf("wrote %s and %s.pub\n", *genkey, *genkey)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	if cfg.LaunchKeyPrivate == "" {
		logrus.Fatal("LAUNCH_KEY_PRIVATE is not set")
	}
	keys, err := auth.LoadKeys(cfg.LaunchKeyPrivate, cfg.LaunchKeyPublic, cfg.LaunchTokenTTL)
	if err != nil {
		logrus.Fatalf("launcher keys: %v", err)
	}
	token, err := keys.CreateLauncherToken(*name)
	if err != nil {
		logrus.Fatalf("sign: %v", err)
	}
	fmt.Println(token)
}

func writeKeyPair(path string) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return err
	}
	return os.WriteFile(path+".pub", pub, 0o644)
}

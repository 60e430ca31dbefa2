package commands

import (
	"fmt"

	"github.com/asoos/domain-sync/pkg/rand"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"
)

const tokenLength = 32

type tokenCommand struct{}

// Execute mints an admin API token. The token goes to the caller, the
// hash goes into the daemon's configuration; the plain token is never
// stored anywhere.
func (s *tokenCommand) Execute(c *cli.Context) error {
	token := rand.StringWithAll(tokenLength)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	fmt.Printf("token: %s\n", token)
	fmt.Printf("hash:  %s\n", string(hash))
	fmt.Println("start the daemon with --admin-token-hash (or DOMAIN_SYNC_ADMIN_TOKEN_HASH) set to the hash")

	return nil
}

func tokenCommandDef() *cli.Command {
	cmd := tokenCommand{}

	return &cli.Command{
		Name:   "token",
		Usage:  "Mint an admin API token and its bcrypt hash",
		Action: cmd.Execute,
	}
}

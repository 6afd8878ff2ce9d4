// Command chamberctl is a thin CLI front end over the chamber vault
// engine: create/unlock/add/get/list/setvalue/delete/rotate over
// flag-parsed subcommands. It holds no crypto logic of its own beyond
// what vault.Vault exposes.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mikeleppane/chamber/vault"
)

func main() {
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	createVaultPath := createCmd.String("vault", "./chamber.db", "path to vault file")

	unlockCmd := flag.NewFlagSet("unlock", flag.ExitOnError)
	unlockVaultPath := unlockCmd.String("vault", "./chamber.db", "path to vault file")

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	addVaultPath := addCmd.String("vault", "./chamber.db", "path to vault file")
	addName := addCmd.String("name", "", "item name")
	addKind := addCmd.String("kind", "password", "item kind (password|apikey|envvar|sshkey|certificate|database|note)")
	addValue := addCmd.String("value", "", "secret value, or gen:N to generate N random characters")

	getCmd := flag.NewFlagSet("get", flag.ExitOnError)
	getVaultPath := getCmd.String("vault", "./chamber.db", "path to vault file")
	getName := getCmd.String("name", "", "item name")

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listVaultPath := listCmd.String("vault", "./chamber.db", "path to vault file")
	listKind := listCmd.String("kind", "", "filter by kind")
	listPrefix := listCmd.String("prefix", "", "filter by name prefix")

	setCmd := flag.NewFlagSet("setvalue", flag.ExitOnError)
	setVaultPath := setCmd.String("vault", "./chamber.db", "path to vault file")
	setName := setCmd.String("name", "", "item name")
	setValue := setCmd.String("value", "", "new value, or gen:N")

	delCmd := flag.NewFlagSet("delete", flag.ExitOnError)
	delVaultPath := delCmd.String("vault", "./chamber.db", "path to vault file")
	delName := delCmd.String("name", "", "item name")

	rotateCmd := flag.NewFlagSet("rotate", flag.ExitOnError)
	rotateVaultPath := rotateCmd.String("vault", "./chamber.db", "path to vault file")

	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "create":
		_ = createCmd.Parse(os.Args[2:])
		err = cmdCreate(*createVaultPath)
	case "unlock":
		_ = unlockCmd.Parse(os.Args[2:])
		err = cmdUnlock(*unlockVaultPath)
	case "add":
		_ = addCmd.Parse(os.Args[2:])
		err = cmdAdd(*addVaultPath, *addName, *addKind, *addValue)
	case "get":
		_ = getCmd.Parse(os.Args[2:])
		err = cmdGet(*getVaultPath, *getName)
	case "list":
		_ = listCmd.Parse(os.Args[2:])
		err = cmdList(*listVaultPath, *listKind, *listPrefix)
	case "setvalue":
		_ = setCmd.Parse(os.Args[2:])
		err = cmdSetValue(*setVaultPath, *setName, *setValue)
	case "delete":
		_ = delCmd.Parse(os.Args[2:])
		err = cmdDelete(*delVaultPath, *delName)
	case "rotate":
		_ = rotateCmd.Parse(os.Args[2:])
		err = cmdRotate(*rotateVaultPath)
	default:
		usage()
		return
	}
	dieIf(err)
}

func usage() {
	fmt.Print(`chamberctl commands:

  create   --vault path
  unlock   --vault path
  add      --vault path --name gh --kind apikey --value gen:32
  get      --vault path --name gh
  list     --vault path [--kind apikey] [--prefix gh-]
  setvalue --vault path --name gh --value <new|gen:N>
  delete   --vault path --name gh
  rotate   --vault path

Examples:
  chamberctl create --vault ./chamber.db
  chamberctl add --vault ./chamber.db --name gh --kind apikey --value gen:32
  chamberctl get --vault ./chamber.db --name gh
`)
}

func openVault(ctx context.Context, path string) (*vault.Vault, error) {
	return vault.Open(ctx, path, vault.DefaultOptions())
}

func cmdCreate(path string) error {
	pp, err := promptSecret("Master passphrase: ")
	if err != nil {
		return err
	}
	defer zero(pp)

	ctx := context.Background()
	v, err := openVault(ctx, path)
	if err != nil {
		return err
	}
	defer v.Close()

	if err := v.Init(ctx, pp, vault.DefaultOptions().ToKDFParams()); err != nil {
		return err
	}
	fmt.Println("Vault created:", path)
	return nil
}

func cmdUnlock(path string) error {
	pp, err := promptSecret("Master passphrase: ")
	if err != nil {
		return err
	}
	defer zero(pp)

	ctx := context.Background()
	v, err := openVault(ctx, path)
	if err != nil {
		return err
	}
	defer v.Close()

	if err := v.Unlock(ctx, pp); err != nil {
		return err
	}
	fmt.Println("Vault unlocked:", path)
	return nil
}

func cmdAdd(path, name, kindStr, value string) error {
	if name == "" {
		return errors.New("--name required")
	}
	kind, err := parseKind(kindStr)
	if err != nil {
		return err
	}
	value = resolveValue(value)

	pp, err := promptSecret("Master passphrase: ")
	if err != nil {
		return err
	}
	defer zero(pp)

	ctx := context.Background()
	v, err := openVault(ctx, path)
	if err != nil {
		return err
	}
	defer v.Close()
	if err := v.Unlock(ctx, pp); err != nil {
		return err
	}
	defer v.Lock()

	id, err := v.Add(ctx, vault.NewItem{Name: name, Kind: kind, Value: []byte(value)})
	if err != nil {
		return err
	}
	fmt.Println("Added item id:", id)
	return nil
}

func cmdGet(path, name string) error {
	if name == "" {
		return errors.New("--name required")
	}

	pp, err := promptSecret("Master passphrase: ")
	if err != nil {
		return err
	}
	defer zero(pp)

	ctx := context.Background()
	v, err := openVault(ctx, path)
	if err != nil {
		return err
	}
	defer v.Close()
	if err := v.Unlock(ctx, pp); err != nil {
		return err
	}
	defer v.Lock()

	item, err := v.Get(ctx, name)
	if err != nil {
		return err
	}

	out := struct {
		Name  string `json:"name"`
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}{Name: item.Name, Kind: item.Kind.String(), Value: string(item.Value)}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	return nil
}

func cmdList(path, kindStr, prefix string) error {
	ctx := context.Background()
	v, err := openVault(ctx, path)
	if err != nil {
		return err
	}
	defer v.Close()

	filter := vault.Filter{NamePrefix: prefix}
	if kindStr != "" {
		kind, err := parseKind(kindStr)
		if err != nil {
			return err
		}
		filter.KindEquals = &kind
	}

	items, err := v.List(ctx, filter)
	if err != nil {
		return err
	}
	b, _ := json.MarshalIndent(items, "", "  ")
	fmt.Println(string(b))
	return nil
}

func cmdSetValue(path, name, value string) error {
	if name == "" {
		return errors.New("--name required")
	}
	if value == "" {
		return errors.New("--value required (or gen:N)")
	}
	value = resolveValue(value)

	pp, err := promptSecret("Master passphrase: ")
	if err != nil {
		return err
	}
	defer zero(pp)

	ctx := context.Background()
	v, err := openVault(ctx, path)
	if err != nil {
		return err
	}
	defer v.Close()
	if err := v.Unlock(ctx, pp); err != nil {
		return err
	}
	defer v.Lock()

	if err := v.Update(ctx, name, vault.Patch{NewValue: []byte(value)}); err != nil {
		return err
	}
	fmt.Println("Value updated for:", name)
	return nil
}

func cmdDelete(path, name string) error {
	if name == "" {
		return errors.New("--name required")
	}

	pp, err := promptSecret("Master passphrase: ")
	if err != nil {
		return err
	}
	defer zero(pp)

	ctx := context.Background()
	v, err := openVault(ctx, path)
	if err != nil {
		return err
	}
	defer v.Close()
	if err := v.Unlock(ctx, pp); err != nil {
		return err
	}
	defer v.Lock()

	if err := v.Delete(ctx, name); err != nil {
		return err
	}
	fmt.Println("Deleted:", name)
	return nil
}

func cmdRotate(path string) error {
	oldPP, err := promptSecret("Current passphrase: ")
	if err != nil {
		return err
	}
	defer zero(oldPP)
	newPP, err := promptSecret("New passphrase: ")
	if err != nil {
		return err
	}
	defer zero(newPP)

	ctx := context.Background()
	v, err := openVault(ctx, path)
	if err != nil {
		return err
	}
	defer v.Close()
	if err := v.Unlock(ctx, oldPP); err != nil {
		return err
	}
	defer v.Lock()

	if err := v.RotatePassphrase(ctx, oldPP, newPP, nil); err != nil {
		return err
	}
	fmt.Println("Passphrase rotated.")
	return nil
}

func parseKind(s string) (vault.ItemKind, error) {
	switch s {
	case "password":
		return vault.KindPassword, nil
	case "apikey":
		return vault.KindAPIKey, nil
	case "envvar":
		return vault.KindEnvVar, nil
	case "sshkey":
		return vault.KindSSHKey, nil
	case "certificate":
		return vault.KindCertificate, nil
	case "database":
		return vault.KindDatabase, nil
	case "note":
		return vault.KindNote, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", s)
	}
}

func resolveValue(value string) string {
	if len(value) > 4 && value[:4] == "gen:" {
		var n int
		_, _ = fmt.Sscanf(value, "gen:%d", &n)
		if n <= 0 {
			n = 20
		}
		return genPassword(n)
	}
	return value
}

func promptSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	br := bufio.NewReader(os.Stdin)
	secret, err := br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(secret) > 0 && secret[len(secret)-1] == '\n' {
		secret = secret[:len(secret)-1]
	}
	return secret, nil
}

func genPassword(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()-_=+[]{}"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		for i := range buf {
			buf[i] = alphabet[i%len(alphabet)]
		}
		return string(buf)
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// Copyright 2024 The vaultengine Authors
// SPDX-License-Identifier: Apache-2.0

// Command vaultengine-demo is a thin, runnable smoke test for the
// vaultengine library: it walks through create_client, write,
// read_guarded, revoke, garbage_collect, records, the auxiliary store,
// and a commit/load_client round trip through a snapshot file on disk.
// It is explicitly outside the library's own contract (spec §1, §6's
// "CLI surface" non-goal) and exists only to give the package an entry
// point a reader can run.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"

	"github.com/shadowglen/vaultengine"
	"github.com/shadowglen/vaultengine/internal/ids"
	"github.com/shadowglen/vaultengine/internal/txn"
)

var (
	ok   = color.New(color.FgGreen).SprintFunc()
	fail = color.New(color.FgRed, color.Bold).SprintFunc()
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{Name: "vaultengine-demo", Level: hclog.Info})

	if err := run(logger); err != nil {
		fmt.Fprintln(os.Stderr, fail("FAIL"), err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger) error {
	var masterKey [32]byte
	copy(masterKey[:], "vaultengine-demo-master-key-3210")

	engine, err := vaultengine.NewEngine(vaultengine.Config{MasterKey: masterKey[:]}, logger)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	clientPath := []byte("demo-client")
	client, err := engine.CreateClient(clientPath)
	if err != nil {
		return fmt.Errorf("create_client: %w", err)
	}
	fmt.Println(ok("ok"), "create_client")

	vaultPath := []byte("demo-vault")
	greeting := ids.Generic(vaultPath, []byte("greeting"))
	farewell := ids.Generic(vaultPath, []byte("farewell"))

	var hint [txn.RecordHintSize]byte
	copy(hint[:], "greeting")
	if err := client.Write(greeting, []byte("hello, vault"), hint); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	copy(hint[:], "farewell")
	if err := client.Write(farewell, []byte("goodbye, vault"), hint); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	fmt.Println(ok("ok"), "write x2")

	if err := client.ReadGuarded(greeting, func(plaintext []byte) error {
		fmt.Println(ok("ok"), "read_guarded:", string(plaintext))
		return nil
	}); err != nil {
		return fmt.Errorf("read_guarded: %w", err)
	}

	if err := client.Revoke(farewell); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	fmt.Println(ok("ok"), "revoke")

	dropped, err := client.GarbageCollect(vaultPath)
	if err != nil {
		return fmt.Errorf("garbage_collect: %w", err)
	}
	fmt.Println(ok("ok"), "garbage_collect, dropped:", dropped)

	records, err := client.Records(vaultPath)
	if err != nil {
		return fmt.Errorf("records: %w", err)
	}
	fmt.Println(ok("ok"), "records, live count:", len(records))

	client.StoreInsert([]byte("note"), []byte("left by the demo run"), 0)
	if value, present := client.StoreGet([]byte("note")); present {
		fmt.Println(ok("ok"), "store get:", string(value))
	}

	snapshotPath := filepath.Join(os.TempDir(), "vaultengine-demo.snapshot")
	defer os.Remove(snapshotPath)
	if err := engine.Commit(snapshotPath, masterKey); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	fmt.Println(ok("ok"), "commit:", snapshotPath)

	if err := engine.DropClient(client); err != nil {
		return fmt.Errorf("drop client: %w", err)
	}

	reloaded, err := engine.LoadClient(snapshotPath, masterKey, clientPath)
	if err != nil {
		return fmt.Errorf("load_client: %w", err)
	}
	if err := reloaded.ReadGuarded(greeting, func(plaintext []byte) error {
		fmt.Println(ok("ok"), "load_client then read_guarded:", string(plaintext))
		return nil
	}); err != nil {
		return fmt.Errorf("read_guarded after load_client: %w", err)
	}

	return nil
}

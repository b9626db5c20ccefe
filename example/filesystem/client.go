package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/MegaGrindStone/go-jsonrpc"
	"github.com/MegaGrindStone/go-jsonrpc/servers/filesystem"
)

type client struct {
	cli     *jsonrpc.Client
	methods []string
	ctx     context.Context
	cancel  context.CancelFunc

	closeLock *sync.Mutex
	closed    bool
	done      chan struct{}
}

func newClient(transport jsonrpc.Transport, methods []string, logger *slog.Logger) *client {
	ctx, cancel := context.WithCancel(context.Background())

	return &client{
		cli:       jsonrpc.NewClient(transport, jsonrpc.WithClientLogger(logger)),
		methods:   methods,
		ctx:       ctx,
		cancel:    cancel,
		closeLock: new(sync.Mutex),
		done:      make(chan struct{}),
	}
}

func (c *client) run() {
	defer c.stop()

	go c.listenInterruptSignal()

	for {
		fmt.Println()
		for i, method := range c.methods {
			fmt.Printf("%d. %s\n", i+1, method)
		}
		fmt.Println()

		fmt.Println("Type one of the commands:")
		fmt.Println("- call <method number>: Call the method with the given number, eg. call 1")
		fmt.Println("- tree <path>: Print the directory tree of path, eg. tree .")
		fmt.Println("- exit: Exit the program")

		input, err := c.waitStdIOInput()
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				return
			}
			fmt.Print(err)
			continue
		}

		command, arg, _ := strings.Cut(strings.TrimSpace(input), " ")
		switch command {
		case "exit":
			return
		case "tree":
			c.printTree(arg)
		case "call":
			number, err := strconv.Atoi(arg)
			if err != nil || number < 1 || number > len(c.methods) {
				fmt.Printf("Method with number %s not found\n", arg)
				continue
			}
			c.call(c.methods[number-1])
		default:
			fmt.Printf("Unknown command: %s\n", input)
			continue
		}

		fmt.Println("Press enter to continue...")
		if _, err := c.waitStdIOInput(); err != nil {
			return
		}
	}
}

func (c *client) call(method string) {
	fmt.Printf("Enter params for %s as JSON, eg. {\"path\":\".\"}:\n", method)

	input, err := c.waitStdIOInput()
	if err != nil {
		return
	}

	var params json.RawMessage
	if input = strings.TrimSpace(input); input != "" {
		if !json.Valid([]byte(input)) {
			fmt.Println("Params are not valid JSON")
			return
		}
		params = json.RawMessage(input)
	}

	var result json.RawMessage
	if err := c.cli.Call(c.ctx, method, params, &result); err != nil {
		fmt.Printf("failed to call %s: %v\n", method, err)
		return
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

func (c *client) printTree(path string) {
	if path == "" {
		path = "."
	}

	var entries []filesystem.Entry
	if err := c.cli.Call(c.ctx, filesystem.MethodDirectoryTree, filesystem.PathArgs{Path: path}, &entries); err != nil {
		fmt.Printf("failed to read tree of %s: %v\n", path, err)
		return
	}
	printEntries(entries, "")
}

func printEntries(entries []filesystem.Entry, indent string) {
	for _, e := range entries {
		if e.Type == "directory" {
			fmt.Printf("%s%s/\n", indent, e.Name)
			printEntries(e.Children, indent+"  ")
			continue
		}
		fmt.Printf("%s%s\n", indent, e.Name)
	}
}

func (c *client) listenInterruptSignal() {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	select {
	case <-signalChan:
		c.stop()
	case <-c.done:
	}
}

func (c *client) waitStdIOInput() (string, error) {
	inputChan := make(chan string)
	errsChan := make(chan error)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			inputChan <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			errsChan <- err
		}
	}()

	select {
	case <-c.ctx.Done():
		return "", os.ErrClosed
	case <-c.done:
		return "", os.ErrClosed
	case err := <-errsChan:
		return "", err
	case input := <-inputChan:
		return input, nil
	}
}

func (c *client) stop() {
	c.closeLock.Lock()
	defer c.closeLock.Unlock()

	c.cancel()
	if !c.closed {
		close(c.done)
		c.closed = true
		_ = c.cli.Close()
	}
}

package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	adminHTTP("state", http.MethodGet, "/admin/v1/state", 5*time.Second, args)
}

func snapshotCmd(args []string) {
	adminHTTP("snapshot", http.MethodPost, "/admin/v1/snapshot", 10*time.Second, args)
}

func bootstrapCmd(args []string) {
	adminHTTP("bootstrap", http.MethodGet, "/admin/v1/observer/bootstrap", 5*time.Second, args)
}

func adminHTTP(name, method, path string, timeout time.Duration, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	status, body, err := doAdminRequest(&http.Client{Timeout: timeout}, method, *baseURL, path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	fmt.Println(body)
	if status/100 != 2 {
		os.Exit(1)
	}
}

func doAdminRequest(cl *http.Client, method, baseURL, path string) (int, string, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := cl.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, strings.TrimSpace(string(b)), nil
}

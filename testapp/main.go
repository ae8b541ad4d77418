package main

import (
	"bufio"
	"crypto/sha256"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// testapp is a disposable workload for poking the manager by hand: it echoes
// stdin, burns CPU or holds RAM on request, exits cleanly or crashes, and can
// fork a tree of children underneath itself.

var (
	children   int
	depth      int
	ignoreTerm bool
	port       int
)

// spawnChildren re-execs this binary to build a process tree underneath us.
// Children don't serve HTTP, they just sit there waiting to be terminated.
func spawnChildren(n, d int) {
	if n <= 0 || d <= 0 {
		return
	}
	self, err := os.Executable()
	if err != nil {
		fmt.Println("Error resolving own executable:", err)
		return
	}
	for i := 0; i < n; i++ {
		args := []string{
			"-children", strconv.Itoa(n),
			"-depth", strconv.Itoa(d - 1),
			"-port", "0",
		}
		if ignoreTerm {
			args = append(args, "-ignore-term")
		}
		cmd := exec.Command(self, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			fmt.Println("Error spawning child:", err)
			continue
		}
		fmt.Printf("Spawned child pid %d (depth %d)\n", cmd.Process.Pid, d-1)
		go cmd.Wait()
	}
}

func reply(w http.ResponseWriter, format string, args ...interface{}) {
	fmt.Fprintf(w, format+"\n", args...)
}

// qint pulls an integer query parameter, falling back to def for anything
// missing, unparsable or non-positive.
func qint(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func echoStdin() {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fmt.Println("stdin:", sc.Text())
	}
	if err := sc.Err(); err != nil {
		fmt.Println("stdin closed:", err)
	}
}

func main() {
	flag.IntVar(&children, "children", 0, "Number of children to spawn per level")
	flag.IntVar(&depth, "depth", 1, "Depth of the spawned process tree")
	flag.BoolVar(&ignoreTerm, "ignore-term", false, "Swallow termination signals")
	flag.IntVar(&port, "port", 15432, "HTTP port, 0 disables the server")
	flag.Parse()

	fmt.Printf("testapp pid %d, children=%d depth=%d ignore-term=%v port=%d\n", os.Getpid(), children, depth, ignoreTerm, port)

	if ignoreTerm {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			for sig := range ch {
				fmt.Println("Ignoring signal:", sig)
			}
		}()
	}

	go echoStdin()

	spawnChildren(children, depth)

	if port == 0 {
		select {}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		reply(w, "exiting with code 0")
		os.Exit(0)
	})

	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		reply(w, "exiting with code 1")
		os.Exit(1)
	})

	mux.HandleFunc("/spawn", func(w http.ResponseWriter, r *http.Request) {
		n := qint(r, "n", 1)
		d := qint(r, "depth", 1)
		spawnChildren(n, d)
		reply(w, "spawned %d children of depth %d", n, d)
	})

	mux.HandleFunc("/stdout", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			reply(w, "could not read body: %v", err)
			return
		}
		fmt.Println(string(body))
		reply(w, "written to stdout")
	})

	mux.HandleFunc("/stderr", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			reply(w, "could not read body: %v", err)
			return
		}
		fmt.Fprintln(os.Stderr, string(body))
		reply(w, "written to stderr")
	})

	mux.HandleFunc("/load_cpu", func(w http.ResponseWriter, r *http.Request) {
		iters := qint(r, "n", 1000000)
		workers := qint(r, "threads", 1)
		burnCPU(iters, workers)
		reply(w, "hashed %d rounds on %d goroutines", iters, workers)
	})

	mux.HandleFunc("/load_ram", func(w http.ResponseWriter, r *http.Request) {
		nBytes := qint(r, "n_bytes", 1024*1024*1024)
		seconds := qint(r, "seconds", 10)
		go holdRAM(nBytes, seconds)
		reply(w, "holding %d bytes for %d seconds", nBytes, seconds)
	})

	addr := "127.0.0.1:" + strconv.Itoa(port)
	fmt.Println("serving on", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Println("server error:", err)
		os.Exit(1)
	}
}

func burnCPU(iters, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hashChain(iters)
		}()
	}
	wg.Wait()
}

// hashChain folds sha256 over its own output so the loop has a data
// dependency the compiler cannot remove.
func hashChain(iters int) [32]byte {
	var d [32]byte
	d[0] = 1
	for i := 0; i < iters; i++ {
		d = sha256.Sum256(d[:])
	}
	return d
}

// holdRAM keeps an allocation of the given size live for the given number
// of seconds, then lets the collector take it back.
func holdRAM(nBytes, seconds int) {
	block := make([]byte, nBytes)
	rand.Read(block)
	fmt.Println("holding", len(block), "bytes")
	time.Sleep(time.Duration(seconds) * time.Second)
	runtime.KeepAlive(block)
	runtime.GC()
	fmt.Println("released")
}

// Command ext2cat mounts an ext2 disk image and runs one of a handful of
// subcommands against it: ls, cat, and stat.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Sirraide/ext2"
	"github.com/Sirraide/ext2/cmd"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-l] [-a] <image> <ls|cat|stat> <path>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	long := flag.Bool("l", false, "long listing format (ls)")
	all := flag.Bool("a", false, "show dotfiles (ls)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 3 {
		usage()
		os.Exit(1)
	}
	imagePath, subcommand, fsPath := args[0], args[1], args[2]

	vol, err := ext2.Mount(imagePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer vol.Close()

	switch subcommand {
	case "ls":
		err = cmd.Ls(vol, fsPath, os.Stdout, cmd.LsOptions{Long: *long, All: *all})
	case "cat":
		err = cmd.Cat(vol, fsPath, os.Stdout)
	case "stat":
		err = cmd.Stat(vol, fsPath, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", subcommand)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// galleryclean walks the captured-artifact directory tree
// (<base>/<date>/<node>/*.jpg) and reports/removes empty per-node and
// per-date directories left behind by partial or never-completed still
// uploads.
//
// Usage:
//
//	galleryclean [--dir <base>] [--dry-run]
//
// Defaults: dir="captured_images".
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

func main() {
	dir := flag.String("dir", "captured_images", "captured-artifact base directory")
	dryRun := flag.Bool("dry-run", false, "print actions without executing them")
	flag.Parse()

	if err := run(*dir, *dryRun); err != nil {
		log.Fatal(err)
	}
}

func run(root string, dryRun bool) error {
	dateEntries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return fmt.Errorf("directory %q does not exist", root)
	}
	if err != nil {
		return err
	}

	var removedNode, removedDate, kept int

	for _, dateEntry := range dateEntries {
		if !dateEntry.IsDir() {
			continue
		}
		dateDir := filepath.Join(root, dateEntry.Name())
		nodeEntries, err := os.ReadDir(dateDir)
		if err != nil {
			log.Printf("skip %s: %v", dateDir, err)
			continue
		}

		remainingNodes := 0
		for _, nodeEntry := range nodeEntries {
			if !nodeEntry.IsDir() {
				continue
			}
			nodeDir := filepath.Join(dateDir, nodeEntry.Name())
			files, err := os.ReadDir(nodeDir)
			if err != nil {
				log.Printf("skip %s: %v", nodeDir, err)
				continue
			}
			if len(files) > 0 {
				remainingNodes++
				kept++
				continue
			}
			if dryRun {
				fmt.Printf("[dry-run] remove empty node dir: %s\n", nodeDir)
			} else {
				fmt.Printf("removing empty node dir: %s\n", nodeDir)
				if err := os.Remove(nodeDir); err != nil {
					log.Printf("remove failed: %v", err)
					remainingNodes++
					continue
				}
				removedNode++
			}
		}

		if remainingNodes > 0 {
			continue
		}
		if dryRun {
			fmt.Printf("[dry-run] remove empty date dir: %s\n", dateDir)
		} else {
			fmt.Printf("removing empty date dir: %s\n", dateDir)
			if err := os.Remove(dateDir); err != nil {
				log.Printf("remove failed: %v", err)
				continue
			}
			removedDate++
		}
	}

	if dryRun {
		fmt.Println("[dry-run] done (no changes made)")
	} else {
		fmt.Printf("done: %d node dirs removed, %d date dirs removed, %d node dirs kept\n", removedNode, removedDate, kept)
	}
	return nil
}

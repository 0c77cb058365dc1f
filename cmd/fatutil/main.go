// Command fatutil is a small inspection CLI over FAT12/16/32 disk images:
// mount (report volume geometry), ls, cat, and stat. It does not
// implement a format subcommand; building a fresh filesystem image is
// out of scope for this driver.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/fatfs/blockdev"
	"github.com/dargueta/fatfs/fat"
)

func main() {
	app := cli.App{
		Usage: "Inspect FAT12/16/32 disk images",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "sector-size",
				Usage: "sector size to assume before the boot sector is parsed",
				Value: 512,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "mount",
				Usage:     "Mount an image and report its geometry",
				ArgsUsage: "IMAGE",
				Action:    mountCmd,
			},
			{
				Name:      "ls",
				Usage:     "List a directory's contents",
				ArgsUsage: "IMAGE PATH",
				Action:    lsCmd,
			},
			{
				Name:      "cat",
				Usage:     "Print a file's contents to stdout",
				ArgsUsage: "IMAGE PATH",
				Action:    catCmd,
			},
			{
				Name:      "stat",
				Usage:     "Report a file's size, or the volume's cluster stats if PATH is omitted",
				ArgsUsage: "IMAGE [PATH]",
				Action:    statCmd,
			},
			{
				Name:   "format",
				Usage:  "Not supported: this driver does not create filesystem images",
				Action: formatCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatutil: %s", err.Error())
	}
}

func mountImage(c *cli.Context, argIndex int) (*fat.FS, func(), error) {
	path := c.Args().Get(argIndex)
	if path == "" {
		return nil, nil, cli.Exit("missing IMAGE argument", 1)
	}

	sectorSize := c.Int("sector-size")
	dev, err := blockdev.OpenFileDevice(path, sectorSize, true)
	if err != nil {
		return nil, nil, err
	}

	fs, err := fat.Mount(dev, fat.MountOptions{ReadOnly: true})
	if err != nil {
		dev.Close()
		return nil, nil, err
	}

	return fs, func() { dev.Close() }, nil
}

func mountCmd(c *cli.Context) error {
	fs, cleanup, err := mountImage(c, 0)
	if err != nil {
		return err
	}
	defer cleanup()

	boot := fs.BootSector()
	stats := fs.GetStats()
	fmt.Printf("FAT type:       %v\n", boot.FATType)
	fmt.Printf("Bytes/sector:   %d\n", boot.BytesPerSector)
	fmt.Printf("Bytes/cluster:  %d\n", boot.BytesPerCluster)
	fmt.Printf("Total clusters: %d\n", stats.TotalClusters)
	fmt.Printf("Free clusters:  %d\n", stats.FreeClusters)
	return nil
}

func lsCmd(c *cli.Context) error {
	fs, cleanup, err := mountImage(c, 0)
	if err != nil {
		return err
	}
	defer cleanup()

	path := c.Args().Get(1)
	if path == "" {
		path = "/"
	}

	names, err := fs.ListDir(path)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func catCmd(c *cli.Context) error {
	fs, cleanup, err := mountImage(c, 0)
	if err != nil {
		return err
	}
	defer cleanup()

	path := c.Args().Get(1)
	if path == "" {
		return cli.Exit("missing PATH argument", 1)
	}

	handle, err := fs.Open(path, false)
	if err != nil {
		return err
	}

	data, err := handle.ReadAll()
	if err != nil {
		return err
	}
	_, err = io.Copy(os.Stdout, bytes.NewReader(data))
	return err
}

func statCmd(c *cli.Context) error {
	fs, cleanup, err := mountImage(c, 0)
	if err != nil {
		return err
	}
	defer cleanup()

	path := c.Args().Get(1)
	if path == "" {
		stats := fs.GetStats()
		fmt.Printf("total_clusters=%d free_clusters=%d total_bytes=%d free_bytes=%d\n",
			stats.TotalClusters, stats.FreeClusters, stats.TotalBytes, stats.FreeBytes)
		return nil
	}

	size, err := fs.GetSizeOf(path)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", size)
	return nil
}

// formatCmd reports that image creation isn't supported, rather than
// silently doing nothing.
func formatCmd(c *cli.Context) error {
	return cli.Exit("fatutil does not create filesystem images", 1)
}

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mirareader/mira-pool/client"
	"github.com/mirareader/mira-pool/commons"

	log "github.com/sirupsen/logrus"
)

func main() {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "main",
	})

	endpoint := flag.String("endpoint", commons.ServiceEndpointDefault, "pool service endpoint")
	page := flag.Int("page", 0, "result page")

	// Parse cli parameters
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintf(os.Stderr, "Give a source id and an optional query!\n")
		os.Exit(1)
	}

	sourceID := args[0]
	query := ""
	if len(args) == 2 {
		query = args[1]
	}

	poolClient := client.NewPoolServiceClient(*endpoint, time.Minute, "search_manga")
	err := poolClient.Connect()
	if err != nil {
		logger.Errorf("%+v", err)
		panic(err)
	}

	defer poolClient.Disconnect()

	previews, err := poolClient.SearchManga(sourceID, query, *page)
	if err != nil {
		logger.Errorf("%+v", err)
		panic(err)
	}

	if len(previews) == 0 {
		fmt.Printf("Found no manga in the source - %q\n", sourceID)
		return
	}

	fmt.Printf("SOURCE: %s\n", sourceID)
	for _, preview := range previews {
		if preview.Bookmarked {
			fmt.Printf("> BOOKMARKED:\t%s\t%s\t(last read %s p%d)\n", preview.MangaID, preview.Title, preview.LastReadChapterID, preview.LastReadPage)
		} else {
			fmt.Printf("> MANGA:\t%s\t%s\n", preview.MangaID, preview.Title)
		}
	}
}

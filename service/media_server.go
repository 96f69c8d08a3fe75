package service

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mirareader/mira-pool/commons"
	"github.com/mirareader/mira-pool/service/image"
	"github.com/mirareader/mira-pool/service/storage"
	log "github.com/sirupsen/logrus"
)

const (
	mediaServerName       string = "mira-pool"
	imageHeaderSeparator  string = ":"
	failedImageStatusText string = "failed"
)

// MediaServer serves downloaded pages, covers and cached network images over HTTP
type MediaServer struct {
	poolServer       *PoolServer
	operationTimeout time.Duration
	app              *fiber.App
}

// NewMediaServer creates a new MediaServer
func NewMediaServer(poolServer *PoolServer, operationTimeout time.Duration) *MediaServer {
	logger := log.WithFields(log.Fields{
		"package": "service",
		"struct":  "MediaServer",
	})

	if operationTimeout <= 0 {
		operationTimeout = commons.OperationTimeoutDefault
	}

	server := &MediaServer{
		poolServer:       poolServer,
		operationTimeout: operationTimeout,
	}

	app := fiber.New(fiber.Config{
		AppName:               mediaServerName,
		ServerHeader:          mediaServerName,
		CaseSensitive:         true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.WithFields(log.Fields{
				"path":   c.Path(),
				"method": c.Method(),
			}).WithError(err).Error("Error handling request")

			code := fiber.StatusInternalServerError
			if fiberErr, ok := err.(*fiber.Error); ok {
				code = fiberErr.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(func(c *fiber.Ctx) error {
		promCounterForMediaRequests.Inc()
		if c.Path() != "/health" {
			logger.WithFields(log.Fields{
				"path":   c.Path(),
				"method": c.Method(),
			}).Debug("Incoming request")
		}
		return c.Next()
	})

	app.Get("/health", server.handleHealth)
	app.Get("/pages/:source/:manga/:chapterIndex/:page", server.handlePage)
	app.Get("/covers/:source/:manga", server.handleCover)
	app.Get("/image", server.handleImage)
	app.Get("/cache/status", server.handleCacheStatus)

	server.app = app
	return server
}

// GetApp returns the fiber app
func (server *MediaServer) GetApp() *fiber.App {
	return server.app
}

// Serve serves requests on the listener until Shutdown
func (server *MediaServer) Serve(listener net.Listener) error {
	return server.app.Listener(listener)
}

// Shutdown stops the server
func (server *MediaServer) Shutdown() error {
	return server.app.Shutdown()
}

func (server *MediaServer) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": commons.GetVersion(),
	})
}

func sendFile(c *fiber.Ctx, file *os.File) error {
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, http.DetectContentType(data))
	return c.Send(data)
}

func (server *MediaServer) handlePage(c *fiber.Ctx) error {
	chapterIndex, err := c.ParamsInt("chapterIndex")
	if err != nil || chapterIndex < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chapter index")
	}

	pageIndex, err := c.ParamsInt("page")
	if err != nil || pageIndex < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid page index")
	}

	ref := storage.ChapterRef{
		SourceID:     c.Params("source"),
		MangaID:      c.Params("manga"),
		ChapterIndex: chapterIndex,
	}

	file, err := server.poolServer.GetMediaStorage().OpenChapterPage(ref, pageIndex)
	if err != nil {
		if commons.IsChapterNotFoundError(err) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}

	return sendFile(c, file)
}

func (server *MediaServer) handleCover(c *fiber.Ctx) error {
	file, err := server.poolServer.GetMediaStorage().OpenCover(c.Params("source"), c.Params("manga"))
	if err != nil {
		if commons.IsMangaNotFoundError(err) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}

	return sendFile(c, file)
}

// parseImageRequest reads url and repeated h=Key:Value query params
func parseImageRequest(c *fiber.Ctx) (image.NetworkImageRequest, error) {
	url := c.Query("url")
	if len(url) == 0 {
		return image.NetworkImageRequest{}, fmt.Errorf("url must be given")
	}

	headers := map[string]string{}
	for _, raw := range c.Context().QueryArgs().PeekMulti("h") {
		key, value, ok := strings.Cut(string(raw), imageHeaderSeparator)
		key = strings.TrimSpace(key)
		if !ok || len(key) == 0 {
			return image.NetworkImageRequest{}, fmt.Errorf("invalid header %q, expected Key:Value", string(raw))
		}
		headers[key] = strings.TrimSpace(value)
	}

	return image.NewNetworkImageRequest(url, headers), nil
}

func (server *MediaServer) handleImage(c *fiber.Ctx) error {
	logger := log.WithFields(log.Fields{
		"package":  "service",
		"struct":   "MediaServer",
		"function": "handleImage",
	})

	req, err := parseImageRequest(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), server.operationTimeout)
	defer cancel()

	bitmap, err := server.poolServer.GetImageRepository().LoadBitmap(ctx, req)
	if err != nil {
		logger.WithError(err).Warnf("failed to load %s", req.ToString())
		promCounterForMediaFailures.Inc()
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"status": failedImageStatusText,
			"url":    req.URL,
		})
	}
	defer bitmap.Free()

	buffer := bytes.Buffer{}
	err = png.Encode(&buffer, bitmap.Image())
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buffer.Bytes())
}

func (server *MediaServer) handleCacheStatus(c *fiber.Ctx) error {
	poolServer := server.poolServer
	return c.JSON(fiber.Map{
		"images":            poolServer.GetImageRepository().Stats(),
		"pending_downloads": poolServer.GetDownloader().Pending(),
		"live_clients":      poolServer.LiveClients(),
		"sessions":          poolServer.GetSessionManager().Sessions(),
	})
}

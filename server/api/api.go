package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/buffer_pool"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/btree"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/table"
)

const defaultScanCount = 10

// Store is the table surface served over HTTP.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
	Delete(key []byte) (bool, error)
	Seek(key []byte) (*btree.Iterator, error)
	Stats() (table.Stats, error)
	ResetStats() error
}

// Entry is one scanned record. Values are base64 in JSON.
type Entry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type Server struct {
	app   *fiber.App
	store Store
}

func NewServer(store Store) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			UnescapePath:          true,
			DisableStartupMessage: true,
		}),
		store: store,
	}
	s.SetupRoutes(s.app)
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *Server) Serve(addr string) error {
	logger.Infof("btreedb http listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) SetupRoutes(router fiber.Router) {
	router.Get("/kv/:key", s.getKey)
	router.Put("/kv/:key", s.putKey)
	router.Delete("/kv/:key", s.deleteKey)
	router.Get("/scan", s.scan)
	router.Get("/stats", s.stats)
	router.Post("/stats/reset", s.resetStats)
}

func internalError(c *fiber.Ctx, err error) error {
	logger.Errorf("%s %s: %v", c.Method(), c.Path(), err)
	status := fiber.StatusInternalServerError
	if buffer_pool.IsBufferPoolFull(err) {
		// every frame pinned right now; the client may retry
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) getKey(c *fiber.Ctx) error {
	value, found, err := s.store.Get([]byte(c.Params("key")))
	if err != nil {
		return internalError(c, err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "key not found"})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(value)
}

func (s *Server) putKey(c *fiber.Ctx) error {
	if err := s.store.Put([]byte(c.Params("key")), c.Body()); err != nil {
		return internalError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) deleteKey(c *fiber.Ctx) error {
	found, err := s.store.Delete([]byte(c.Params("key")))
	if err != nil {
		return internalError(c, err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "key not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) scan(c *fiber.Ctx) error {
	count := defaultScanCount
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "count must be a non-negative integer"})
		}
		count = n
	}

	it, err := s.store.Seek([]byte(c.Query("start")))
	if err != nil {
		return internalError(c, err)
	}
	defer it.Close()

	entries := make([]Entry, 0, count)
	for i := 0; i < count && !it.IsEnd(); i++ {
		entries = append(entries, Entry{Key: string(it.Key()), Value: it.Value()})
		if err := it.Next(); err != nil {
			return internalError(c, err)
		}
	}
	return c.JSON(entries)
}

func (s *Server) stats(c *fiber.Ctx) error {
	st, err := s.store.Stats()
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(st)
}

func (s *Server) resetStats(c *fiber.Ctx) error {
	if err := s.store.ResetStats(); err != nil {
		return internalError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

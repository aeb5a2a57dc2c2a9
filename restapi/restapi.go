// Package restapi is a gin-gonic HTTP surface over the session package: the
// same gin.Default()/route-group/ginSwagger.WrapHandler wiring and Okta
// bearer-token verification middleware, generalized to per-document-type
// CRUD endpoints backed by a Session.
package restapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	jwtverifier "github.com/okta/okta-jwt-verifier-golang"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/commands"
	"github.com/andrewcoll/yessql/descriptor"
	"github.com/andrewcoll/yessql/session"
	"github.com/andrewcoll/yessql/store"
)

// SessionFactory opens a new Session for the lifetime of one HTTP request,
// mirroring the unit-of-work-per-request pattern.
type SessionFactory func() *session.Session

// Server wires SessionFactory-backed CRUD endpoints into a gin router.
type Server struct {
	router  *gin.Engine
	newSess SessionFactory
	// OktaDomain and DevBypass configure the verify middleware; DevBypass
	// true together with YESSQL_ENV=DEV skips verification, allowing local
	// development without an Okta tenant.
	OktaDomain string
	DevBypass  bool
}

// New creates a Server whose endpoints each open a fresh Session via
// newSess.
func New(newSess SessionFactory) *Server {
	router := gin.Default()
	return &Server{router: router, newSess: newSess}
}

// Router exposes the underlying gin.Engine, e.g. for router.Run.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// WithSwagger mounts the swaggo-generated documentation UI at /swagger/*any.
func (s *Server) WithSwagger() *Server {
	s.router.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))
	return s
}

// verify implements bearer-token verification against Okta, bypassed in
// development when DevBypass is set and YESSQL_ENV=DEV.
func (s *Server) verify(c *gin.Context) bool {
	if s.DevBypass && os.Getenv("YESSQL_ENV") == "DEV" {
		return true
	}
	token := c.Request.Header.Get("Authorization")
	if !strings.HasPrefix(token, "Bearer ") {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return false
	}
	token = strings.TrimPrefix(token, "Bearer ")

	verifierSetup := jwtverifier.JwtVerifier{
		Issuer:           "https://" + s.OktaDomain + "/oauth2/default",
		ClaimsToValidate: map[string]string{"aud": "api://default"},
	}
	if _, err := verifierSetup.New().VerifyAccessToken(token); err != nil {
		c.String(http.StatusForbidden, err.Error())
		return false
	}
	return true
}

func (s *Server) authenticated(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.verify(c) {
			h(c)
		}
	}
}

// RegisterEntity mounts GET/:id, POST, and DELETE/:id under basePath for
// entity type T, each request running one Session commit/dispose cycle.
func RegisterEntity[T any](s *Server, group *gin.RouterGroup, basePath string) {
	group.GET(basePath+"/:id", s.authenticated(getEntity[T](s)))
	group.POST(basePath, s.authenticated(saveEntity[T](s)))
	group.DELETE(basePath+"/:id", s.authenticated(deleteEntity[T](s)))
}

// getEntity godoc
// @Summary Fetch an entity by id
// @Produce json
// @Success 200 {object} object
// @Failure 404 {object} map[string]any
func getEntity[T any](s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid id"})
			return
		}

		sess := s.newSess()
		defer sess.Dispose(c.Request.Context())

		results, err := session.Get[T](c.Request.Context(), sess, []int64{id})
		if err != nil {
			respondError(c, err)
			return
		}
		if results[0] == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		c.JSON(http.StatusOK, results[0])
	}
}

// saveEntity godoc
// @Summary Create or update an entity
// @Accept json
// @Produce json
// @Success 200 {object} object
// @Failure 400 {object} map[string]any
func saveEntity[T any](s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var entity T
		if err := c.ShouldBindJSON(&entity); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		sess := s.newSess()
		defer sess.Dispose(c.Request.Context())

		if err := sess.Save(&entity); err != nil {
			respondError(c, err)
			return
		}
		if err := sess.Commit(c.Request.Context()); err != nil {
			sess.Cancel()
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entity)
	}
}

// deleteEntity godoc
// @Summary Delete an entity by id
// @Success 204
// @Failure 404 {object} map[string]any
func deleteEntity[T any](s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid id"})
			return
		}

		sess := s.newSess()
		defer sess.Dispose(c.Request.Context())

		results, err := session.Get[T](c.Request.Context(), sess, []int64{id})
		if err != nil {
			respondError(c, err)
			return
		}
		if results[0] == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
			return
		}
		if err := sess.Delete(results[0]); err != nil {
			respondError(c, err)
			return
		}
		if err := sess.Commit(c.Request.Context()); err != nil {
			sess.Cancel()
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func respondError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	if yessql.IsCode(err, yessql.ErrInvalidArgument) || yessql.IsCode(err, yessql.ErrInvalidOperation) {
		code = http.StatusBadRequest
	}
	c.JSON(code, gin.H{"message": err.Error()})
}

// NewSessionFactory adapts a fixed set of collaborators into a
// SessionFactory, the common case of one connection factory, document
// store, executor, and descriptor registry shared across requests.
func NewSessionFactory(connFactory store.ConnectionFactory, docStore store.DocumentStore, executor commands.Executor, registry *descriptor.Registry, opts ...session.Option) SessionFactory {
	return func() *session.Session {
		return session.New(connFactory, docStore, executor, registry, opts...)
	}
}

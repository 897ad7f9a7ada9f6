package http

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"prepdeck/internal/analysis"
	"prepdeck/internal/archive"
	"prepdeck/internal/domain"
	"prepdeck/internal/service"
	"prepdeck/internal/session"
	"prepdeck/internal/storage"
)

const identityKey = "sessionIdentity"

// Handler wires HTTP routes to domain services.
type Handler struct {
	users    service.UserService
	answers  service.AnswerService
	sessions *session.Binder
	archive  *archive.Archive
	catalog  *archive.Catalog
	runner   analysis.Runner
	mirror   *storage.Mirror
	storage  storage.Service
	bucket   string

	cookieName string
	corsOrigin string
	catalogDir string
	modelsDir  string

	logger *logrus.Logger
}

type Options struct {
	Users      service.UserService
	Answers    service.AnswerService
	Sessions   *session.Binder
	Archive    *archive.Archive
	Catalog    *archive.Catalog
	Runner     analysis.Runner
	Mirror     *storage.Mirror
	Storage    storage.Service
	Bucket     string
	CookieName string
	CORSOrigin string
	CatalogDir string
	ModelsDir  string
	Logger     *logrus.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.CookieName == "" {
		opts.CookieName = "prepdeck_session"
	}
	return &Handler{
		users:      opts.Users,
		answers:    opts.Answers,
		sessions:   opts.Sessions,
		archive:    opts.Archive,
		catalog:    opts.Catalog,
		runner:     opts.Runner,
		mirror:     opts.Mirror,
		storage:    opts.Storage,
		bucket:     opts.Bucket,
		cookieName: opts.CookieName,
		corsOrigin: opts.CORSOrigin,
		catalogDir: opts.CatalogDir,
		modelsDir:  opts.ModelsDir,
		logger:     opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(h.corsOrigin))

	router.POST("/register", h.register)
	router.POST("/login", h.login)

	authed := router.Group("/", h.requireSession())
	{
		authed.POST("/save-answer", h.saveAnswer)
		authed.POST("/upload-answer", h.uploadAnswer)
		authed.POST("/upload-transcript", h.uploadTranscript)
		authed.POST("/choose-domain", h.chooseDomain)
		authed.GET("/get-videos", h.getVideos)
		authed.GET("/answers-list", h.listAnswers)
		authed.GET("/storage/objects", h.listObjects)
	}

	// analysis endpoints carry no session requirement
	router.GET("/analyze/:kind", h.analyze)

	router.Static("/videos", h.catalogDir)
	router.Static("/models", h.modelsDir)
	router.Static("/answers", h.archive.Root())
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requireSession reconstructs the session identity from the cookie token and
// rejects the request when none resolves.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(h.cookieName)
		if err != nil {
			c.String(http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}

		identity, err := h.sessions.Parse(token)
		if err != nil {
			c.String(http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) domain.SessionIdentity {
	identity, _ := c.MustGet(identityKey).(domain.SessionIdentity)
	return identity
}

func (h *Handler) setSessionCookie(c *gin.Context, identity domain.SessionIdentity) error {
	token, err := h.sessions.Token(identity)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.sessions.TTL().Seconds()), "/", "", false, true)
	return nil
}

type registerRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
	Email    string `json:"email" form:"email"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.Email); err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.String(http.StatusConflict, "User already exists.")
			return
		}
		h.logger.Warnf("register %s: %v", req.Username, err)
		c.String(http.StatusInternalServerError, "Registration failed")
		return
	}

	c.String(http.StatusOK, "Registered successfully.")
}

type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Warnf("login %s: %v", req.Username, err)
		}
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	identity := h.sessions.Begin(user.Username)
	if err := h.setSessionCookie(c, identity); err != nil {
		h.logger.Warnf("mint session for %s: %v", user.Username, err)
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type saveAnswerRequest struct {
	Question int    `json:"question" form:"question" binding:"required"`
	Answer   string `json:"answer" form:"answer"`
}

func (h *Handler) saveAnswer(c *gin.Context) {
	var req saveAnswerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := identityFrom(c)
	if err := h.answers.Save(c.Request.Context(), identity, req.Question, req.Answer); err != nil {
		if errors.Is(err, service.ErrInvalidQuestion) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warnf("save answer for %s: %v", identity.Username, err)
		c.String(http.StatusInternalServerError, "DB error")
		return
	}

	c.String(http.StatusOK, "Saved")
}

type transcriptRequest struct {
	Question   int    `json:"question" form:"question" binding:"required"`
	Transcript string `json:"transcript" form:"transcript"`
}

func (h *Handler) uploadTranscript(c *gin.Context) {
	var req transcriptRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := identityFrom(c)
	if err := h.answers.Save(c.Request.Context(), identity, req.Question, req.Transcript); err != nil {
		if errors.Is(err, service.ErrInvalidQuestion) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warnf("save transcript for %s: %v", identity.Username, err)
		c.String(http.StatusInternalServerError, "Failed to save transcript")
		return
	}

	c.String(http.StatusOK, "Transcript saved")
}

func (h *Handler) uploadAnswer(c *gin.Context) {
	question, err := strconv.Atoi(c.PostForm("question"))
	if err != nil || question <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question number"})
		return
	}

	file, header, err := c.Request.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video file is required"})
		return
	}
	defer file.Close()

	identity := identityFrom(c)
	path, err := h.archive.Store(identity, question, filepath.Ext(header.Filename), file)
	if err != nil {
		if errors.Is(err, archive.ErrUnsupportedExtension) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warnf("store video for %s: %v", identity.Username, err)
		c.String(http.StatusInternalServerError, "Upload failed")
		return
	}

	h.mirror.Enqueue(path)
	c.String(http.StatusOK, "Video uploaded")
}

type chooseDomainRequest struct {
	Domain string `json:"domain" form:"domain" binding:"required"`
}

func (h *Handler) chooseDomain(c *gin.Context) {
	var req chooseDomainRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := identityFrom(c)
	identity.Domain = req.Domain
	if err := h.setSessionCookie(c, identity); err != nil {
		h.logger.Warnf("update session for %s: %v", identity.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) getVideos(c *gin.Context) {
	domainName := c.Query("domain")
	if domainName == "" {
		domainName = identityFrom(c).Domain
	}
	if domainName == "" {
		c.String(http.StatusBadRequest, "Domain not specified")
		return
	}

	urls, err := h.catalog.List(domainName)
	if err != nil {
		h.logger.Warnf("list catalog %s: %v", domainName, err)
		c.String(http.StatusInternalServerError, "Failed to list videos")
		return
	}

	c.JSON(http.StatusOK, urls)
}

type answerResponse struct {
	Question int    `json:"question"`
	Answer   string `json:"answer"`
}

func (h *Handler) listAnswers(c *gin.Context) {
	identity := identityFrom(c)
	answers, err := h.answers.ListSession(c.Request.Context(), identity)
	if err != nil {
		h.logger.Warnf("list answers for %s: %v", identity.Username, err)
		c.String(http.StatusInternalServerError, "DB error")
		return
	}

	resp := make([]answerResponse, len(answers))
	for i := range answers {
		resp[i] = answerResponse{
			Question: answers[i].Question,
			Answer:   answers[i].Answer,
		}
	}
	c.JSON(http.StatusOK, resp)
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

// listObjects reports what the mirror has pushed to object storage.
func (h *Handler) listObjects(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage service not configured"})
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, c.Query("prefix"))
	if err != nil {
		h.logger.Warnf("list storage objects: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list objects"})
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = StorageObjectResponse{
			Key:  objects[i].Key,
			Size: objects[i].Size,
		}
		if objects[i].LastModified != nil && !objects[i].LastModified.IsZero() {
			v := objects[i].LastModified.Format(time.RFC3339)
			resp[i].LastModified = &v
		}
	}
	c.JSON(http.StatusOK, resp)
}

var analysisKinds = map[string]analysis.Kind{
	"eye":     analysis.KindEye,
	"fer":     analysis.KindEmotion,
	"posture": analysis.KindPosture,
	"voice":   analysis.KindVoice,
}

var analysisFailures = map[analysis.Kind]string{
	analysis.KindEye:     "Eye detection failed",
	analysis.KindEmotion: "FER failed",
	analysis.KindPosture: "Posture failed",
	analysis.KindVoice:   "Voice evaluation failed",
}

func (h *Handler) analyze(c *gin.Context) {
	kind, ok := analysisKinds[c.Param("kind")]
	if !ok {
		c.String(http.StatusNotFound, "Unknown analysis")
		return
	}

	output, err := h.runner.Run(c.Request.Context(), kind)
	if err != nil {
		c.String(http.StatusInternalServerError, analysisFailures[kind])
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "output": output})
}

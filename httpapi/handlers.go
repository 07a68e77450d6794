package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/sandbox"
	"github.com/isdmx/coderunner/workspace"
)

type compileRequest struct {
	ProjectID string `json:"projectId"`
	Path      string `json:"path"`
	Language  string `json:"language"`
}

type createProjectRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
	Language  string `json:"language"`
}

type saveFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

type createEntryRequest struct {
	Path string `json:"path" binding:"required"`
	Type string `json:"type"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCompile runs a project file. Every well-formed request gets 200; the
// body carries either the output or the error.
func (s *Server) handleCompile(c *gin.Context) {
	var req compileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result := s.executor.Execute(c.Request.Context(), sandbox.ExecutionRequest{
		ProjectID: req.ProjectID,
		EntryPath: req.Path,
		Language:  req.Language,
	})
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	if err := s.store.CreateProject(req.ProjectID, req.Language); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"projectId": req.ProjectID, "language": req.Language})
}

func (s *Server) handleListFiles(c *gin.Context) {
	tree, err := s.store.Tree(c.Param("projectId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (s *Server) handleReadFile(c *gin.Context) {
	path, ok := c.GetQuery("path")
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing path query parameter"})
		return
	}

	content, err := s.store.ReadFile(c.Param("projectId"), path)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(content))
}

func (s *Server) handleSaveFile(c *gin.Context) {
	var req saveFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	if err := s.store.SaveFile(c.Param("projectId"), req.Path, req.Content); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": req.Path})
}

func (s *Server) handleCreateEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	if err := s.store.CreateEntry(c.Param("projectId"), req.Path, req.Type); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": req.Path, "type": req.Type})
}

// handleArchive streams the project as tar.gz. Repeated "exclude" query
// parameters add to the configured exclude patterns.
func (s *Server) handleArchive(c *gin.Context) {
	projectID := c.Param("projectId")
	data, err := s.store.Archive(projectID, c.QueryArray("exclude")...)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", projectID+".tar.gz"))
	c.Data(http.StatusOK, "application/gzip", data)
}

// writeError maps workspace errors onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case workspace.IsNotFound(err):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case workspace.IsConflict(err):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case workspace.IsInvalid(err):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("project_id", c.Param("projectId")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

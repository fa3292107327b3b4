package api

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/michael-freling/telecloud/internal/transfer"
	"github.com/michael-freling/telecloud/internal/tree"
)

// parseOptionalID treats an absent value and "null" as the root.
func parseOptionalID(value string) (*uint, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "null" {
		return nil, nil
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", tree.ErrValidation, value)
	}
	result := uint(id)
	return &result, nil
}

func parseID(c *gin.Context) (uint, error) {
	id, err := parseOptionalID(c.Param("id"))
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, fmt.Errorf("%w: id is required", tree.ErrValidation)
	}
	return *id, nil
}

func bindJSON(c *gin.Context, request any) error {
	if err := c.ShouldBindJSON(request); err != nil {
		return fmt.Errorf("%w: %v", tree.ErrValidation, err)
	}
	return nil
}

func (server *Server) listItems(c *gin.Context) {
	parentID, err := parseOptionalID(c.Query("parentId"))
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	items, err := server.dbClient.Item(c.Request.Context()).ListChildren(ownerID(c), parentID, false)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (server *Server) getPath(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	chain, err := server.treeService.AncestorChain(c.Request.Context(), ownerID(c), id)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chain)
}

func (server *Server) listFavorites(c *gin.Context) {
	items, err := server.dbClient.Item(c.Request.Context()).ListFavorites(ownerID(c))
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (server *Server) listTrash(c *gin.Context) {
	items, err := server.dbClient.Item(c.Request.Context()).ListTrash(ownerID(c))
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (server *Server) listFolders(c *gin.Context) {
	folders, err := server.treeService.FolderTree(c.Request.Context(), ownerID(c))
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

func (server *Server) search(c *gin.Context) {
	folderID, err := parseOptionalID(c.Query("folderId"))
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	results, err := server.searchRunner.Search(c.Request.Context(), ownerID(c), c.Query("term"), folderID)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID *uint  `json:"parentId"`
}

func (server *Server) createFolder(c *gin.Context) {
	var request createFolderRequest
	if err := bindJSON(c, &request); err != nil {
		server.abortWithError(c, err)
		return
	}
	folder, err := server.treeService.CreateFolder(c.Request.Context(), ownerID(c), request.ParentID, request.Name)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, folder)
}

type favoriteRequest struct {
	IsFavorite *bool `json:"isFavorite" binding:"required"`
}

func (server *Server) setFavorite(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	var request favoriteRequest
	if err := bindJSON(c, &request); err != nil {
		server.abortWithError(c, err)
		return
	}
	if err := server.treeService.SetFavorite(c.Request.Context(), ownerID(c), id, *request.IsFavorite); err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "favorite status updated"})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (server *Server) rename(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	var request renameRequest
	if err := bindJSON(c, &request); err != nil {
		server.abortWithError(c, err)
		return
	}
	if err := server.treeService.Rename(c.Request.Context(), ownerID(c), id, request.Name); err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item renamed"})
}

type itemsRequest struct {
	ItemIDs []uint `json:"itemIds" binding:"required"`
}

func (server *Server) trashItem(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	trashed, err := server.treeService.Trash(c.Request.Context(), ownerID(c), []uint{id})
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trashed": trashed})
}

func (server *Server) trashItems(c *gin.Context) {
	var request itemsRequest
	if err := bindJSON(c, &request); err != nil {
		server.abortWithError(c, err)
		return
	}
	trashed, err := server.treeService.Trash(c.Request.Context(), ownerID(c), request.ItemIDs)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trashed": trashed})
}

func (server *Server) restoreItems(c *gin.Context) {
	var request itemsRequest
	if err := bindJSON(c, &request); err != nil {
		server.abortWithError(c, err)
		return
	}
	restored, err := server.treeService.Restore(c.Request.Context(), ownerID(c), request.ItemIDs)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}

type moveRequest struct {
	ItemIDs       []uint `json:"itemIds" binding:"required"`
	DestinationID *uint  `json:"destinationId"`
}

func (server *Server) moveItems(c *gin.Context) {
	var request moveRequest
	if err := bindJSON(c, &request); err != nil {
		server.abortWithError(c, err)
		return
	}
	moved, err := server.treeService.Move(c.Request.Context(), ownerID(c), request.ItemIDs, request.DestinationID)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved})
}

func (server *Server) deleteItem(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	deleted, err := server.treeService.PermanentlyDelete(c.Request.Context(), ownerID(c), id)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (server *Server) upload(c *gin.Context) {
	parentID, err := parseOptionalID(c.PostForm("parentId"))
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		server.abortWithError(c, fmt.Errorf("%w: %v", tree.ErrValidation, err))
		return
	}
	file, err := header.Open()
	if err != nil {
		server.abortWithError(c, fmt.Errorf("header.Open: %w", err))
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}
	item, err := server.transferService.Upload(c.Request.Context(), ownerID(c), parentID, header.Filename, file, mimeType)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func (server *Server) download(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	mode := transfer.ModeDownload
	if c.Query("type") == string(transfer.ModePreview) {
		mode = transfer.ModePreview
	}

	ctx := c.Request.Context()
	download, err := server.transferService.Open(ctx, ownerID(c), id, mode)
	if err != nil {
		server.abortWithError(c, err)
		return
	}

	if mode == transfer.ModeDownload {
		defer download.Body.Close()
		c.DataFromReader(http.StatusOK, download.Size, download.ContentType(), download.Body, map[string]string{
			"Content-Disposition": attachment(download.Item.Name),
		})
		return
	}

	// previews of media need range requests
	body, err := server.transferService.Seekable(download)
	if err != nil {
		server.abortWithError(c, err)
		return
	}
	defer body.Close()
	c.Header("Content-Type", download.ContentType())
	http.ServeContent(c.Writer, c.Request, download.Item.Name, download.Item.UpdatedAt, body)
}

func (server *Server) downloadZip(c *gin.Context) {
	var request itemsRequest
	if err := bindJSON(c, &request); err != nil {
		server.abortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	archive, err := server.exporter.Prepare(ctx, ownerID(c), request.ItemIDs)
	if err != nil {
		server.abortWithError(c, fmt.Errorf("exporter.Prepare: %w", err))
		return
	}

	filename := fmt.Sprintf("telecloud-%s.zip", time.Now().Format("20060102-150405"))
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", attachment(filename))
	c.Status(http.StatusOK)

	summary, err := archive.Write(ctx, c.Writer)
	if err != nil {
		// the status line is already sent
		server.logger.ErrorContext(ctx, "failed to write a zip archive",
			"ownerID", ownerID(c),
			"error", err,
		)
		return
	}
	if failures := summary.Err(); failures != nil {
		server.logger.WarnContext(ctx, "a zip archive has failed entries",
			"ownerID", ownerID(c),
			"failures", len(summary.Failures),
			"error", failures,
		)
	}
}

package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/michael-freling/telecloud/internal/config"
	"github.com/michael-freling/telecloud/internal/db"
	"golang.org/x/time/rate"
)

const mimeDetectionBytes = 3072

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

type telegramFile struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size"`
	FilePath     string `json:"file_path"`
}

type telegramMessage struct {
	MessageID int64         `json:"message_id"`
	Document  *telegramFile `json:"document"`
	Video     *telegramFile `json:"video"`
	Audio     *telegramFile `json:"audio"`
	Animation *telegramFile `json:"animation"`
}

func (message telegramMessage) file() *telegramFile {
	for _, file := range []*telegramFile{
		message.Document,
		message.Video,
		message.Audio,
		message.Animation,
	} {
		if file != nil {
			return file
		}
	}
	return nil
}

// TelegramGateway stores files as documents in a Telegram channel.
type TelegramGateway struct {
	logger *slog.Logger
	conf   config.TelegramConfig

	api     *resty.Client
	uploads *resty.Client
	files   *retryablehttp.Client
	limiter *rate.Limiter
}

func NewTelegramGateway(logger *slog.Logger, conf config.TelegramConfig) *TelegramGateway {
	api := resty.New().
		SetBaseURL(conf.APIBaseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(conf.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(response *resty.Response, err error) bool {
			if response == nil {
				return false
			}
			return response.StatusCode() == http.StatusTooManyRequests ||
				response.StatusCode() >= http.StatusInternalServerError
		})

	// the body of an upload is a stream which cannot be sent twice
	uploads := resty.New().
		SetBaseURL(conf.APIBaseURL).
		SetTimeout(conf.Timeout)

	files := retryablehttp.NewClient()
	files.RetryMax = conf.RetryCount
	files.RetryWaitMin = 500 * time.Millisecond
	files.RetryWaitMax = 5 * time.Second
	files.Logger = logger

	burst := conf.Burst
	if burst < 1 {
		burst = 1
	}

	return &TelegramGateway{
		logger:  logger,
		conf:    conf,
		api:     api,
		uploads: uploads,
		files:   files,
		limiter: rate.NewLimiter(rate.Limit(conf.RequestsPerSecond), burst),
	}
}

func (gateway *TelegramGateway) Upload(ctx context.Context, token OwnerToken, r io.Reader, filename string, mimeType string) (db.BlobRef, error) {
	if token.IsEmpty() {
		return db.BlobRef{}, fmt.Errorf("%w: telegram bot token or channel id is not configured", ErrUploadFailed)
	}

	if mimeType == "" || mimeType == "application/octet-stream" {
		head := make([]byte, mimeDetectionBytes)
		n, err := io.ReadFull(r, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return db.BlobRef{}, fmt.Errorf("%w: io.ReadFull: %w", ErrUploadFailed, err)
		}
		head = head[:n]
		mimeType = mimetype.Detect(head).String()
		r = io.MultiReader(bytes.NewReader(head), r)
	}

	body := &countingReader{
		reader: r,
		limit:  gateway.conf.MaxUploadBytes,
	}
	message, err := gateway.sendDocument(ctx, token, body, filename, mimeType)
	if body.exceeded {
		return db.BlobRef{}, fmt.Errorf("%w: %s is larger than %s",
			ErrUploadFailed,
			filename,
			humanize.IBytes(uint64(gateway.conf.MaxUploadBytes)),
		)
	}
	if err != nil {
		return db.BlobRef{}, err
	}

	file := message.file()
	if file == nil || file.FileID == "" {
		return db.BlobRef{}, fmt.Errorf("%w: sendDocument returned no file", ErrUploadFailed)
	}
	sizeBytes := file.FileSize
	if sizeBytes == 0 {
		sizeBytes = body.count
	}

	gateway.logger.DebugContext(ctx, "uploaded a document",
		"filename", filename,
		"messageID", message.MessageID,
		"sizeBytes", sizeBytes,
	)
	return db.BlobRef{
		FileID:    file.FileID,
		MessageID: message.MessageID,
		Size:      humanize.Bytes(uint64(sizeBytes)),
		SizeBytes: sizeBytes,
		FileType:  FileType(filename),
		MimeType:  mimeType,
	}, nil
}

func (gateway *TelegramGateway) sendDocument(ctx context.Context, token OwnerToken, r io.Reader, filename string, mimeType string) (telegramMessage, error) {
	if err := gateway.limiter.Wait(ctx); err != nil {
		return telegramMessage{}, fmt.Errorf("%w: limiter.Wait: %w", ErrUploadFailed, err)
	}

	pipeReader, pipeWriter := io.Pipe()
	form := multipart.NewWriter(pipeWriter)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipeWriter.CloseWithError(writeDocumentForm(form, token.ChatID, filename, mimeType, r))
	}()
	// r must not be read after returning
	defer func() {
		pipeReader.Close()
		<-done
	}()

	var response apiResponse[telegramMessage]
	_, err := gateway.uploads.R().
		SetContext(ctx).
		SetPathParam("token", token.BotToken).
		SetHeader("Content-Type", form.FormDataContentType()).
		SetBody(pipeReader).
		SetResult(&response).
		SetError(&response).
		Post("/bot{token}/sendDocument")
	if err != nil {
		return telegramMessage{}, fmt.Errorf("%w: sendDocument: %w", ErrUploadFailed, withoutURL(err))
	}
	if !response.OK {
		return telegramMessage{}, fmt.Errorf("%w: sendDocument: %d %s",
			ErrUploadFailed,
			response.ErrorCode,
			response.Description,
		)
	}
	return response.Result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeDocumentForm(form *multipart.Writer, chatID string, filename string, mimeType string, r io.Reader) error {
	if err := form.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("form.WriteField: %w", err)
	}
	if err := form.WriteField("disable_content_type_detection", "true"); err != nil {
		return fmt.Errorf("form.WriteField: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="document"; filename="%s"`, quoteEscaper.Replace(filename)),
	)
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("form.CreatePart: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("io.Copy: %w", err)
	}
	return form.Close()
}

func (gateway *TelegramGateway) Open(ctx context.Context, token OwnerToken, ref db.BlobRef) (io.ReadCloser, int64, error) {
	if ref.FileID == "" {
		return nil, 0, fmt.Errorf("%w: no remote file id", ErrObjectMissing)
	}
	if token.BotToken == "" {
		return nil, 0, fmt.Errorf("%w: telegram bot token is not configured", ErrUpstream)
	}

	file, err := gateway.getFile(ctx, token, ref.FileID)
	if err != nil {
		return nil, 0, err
	}

	switch gateway.conf.Mode {
	case config.BlobModeNetworked:
		return gateway.openRemote(ctx, token, file.FilePath)
	default:
		return gateway.openLocal(token, file.FilePath)
	}
}

func (gateway *TelegramGateway) getFile(ctx context.Context, token OwnerToken, fileID string) (telegramFile, error) {
	if err := gateway.limiter.Wait(ctx); err != nil {
		return telegramFile{}, fmt.Errorf("%w: limiter.Wait: %w", ErrUpstream, err)
	}

	var response apiResponse[telegramFile]
	_, err := gateway.api.R().
		SetContext(ctx).
		SetPathParam("token", token.BotToken).
		SetQueryParam("file_id", fileID).
		SetResult(&response).
		SetError(&response).
		Get("/bot{token}/getFile")
	if err != nil {
		return telegramFile{}, fmt.Errorf("%w: getFile: %w", ErrUpstream, withoutURL(err))
	}
	if !response.OK {
		if strings.Contains(response.Description, "file_id") {
			return telegramFile{}, fmt.Errorf("%w: getFile: %s", ErrObjectMissing, response.Description)
		}
		return telegramFile{}, fmt.Errorf("%w: getFile: %d %s",
			ErrUpstream,
			response.ErrorCode,
			response.Description,
		)
	}
	if response.Result.FilePath == "" {
		return telegramFile{}, fmt.Errorf("%w: getFile returned no path", ErrObjectMissing)
	}
	return response.Result, nil
}

// LocalPath maps a path reported by a local Bot API server onto this host.
// Absolute paths are relative to the server's working directory, and
// relative ones to the bot's own directory inside it.
func (gateway *TelegramGateway) LocalPath(token OwnerToken, filePath string) string {
	if !filepath.IsAbs(filePath) {
		return filepath.Join(gateway.conf.LocalBaseDirectory, token.BotToken, filePath)
	}

	relativePath, err := filepath.Rel(gateway.conf.RemoteRoot, filePath)
	if err != nil || relativePath == ".." || strings.HasPrefix(relativePath, "../") {
		return filePath
	}
	return filepath.Join(gateway.conf.LocalBaseDirectory, relativePath)
}

func (gateway *TelegramGateway) openLocal(token OwnerToken, filePath string) (io.ReadCloser, int64, error) {
	localPath := gateway.LocalPath(token, filePath)
	file, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrObjectMissing, localPath)
		}
		return nil, 0, fmt.Errorf("os.Open: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("file.Stat: %w", err)
	}
	return file, stat.Size(), nil
}

func (gateway *TelegramGateway) remoteFileURL(token OwnerToken, filePath string) string {
	host := strings.TrimSuffix(gateway.conf.RemoteHost, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return fmt.Sprintf("%s/file/bot%s/%s", host, token.BotToken, strings.TrimPrefix(filePath, "/"))
}

func (gateway *TelegramGateway) openRemote(ctx context.Context, token OwnerToken, filePath string) (io.ReadCloser, int64, error) {
	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, gateway.remoteFileURL(token, filePath), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("retryablehttp.NewRequestWithContext: %w", withoutURL(err))
	}
	response, err := gateway.files.Do(request)
	if err != nil {
		// the url carries the bot token
		return nil, 0, fmt.Errorf("%w: downloading %s failed", ErrUpstream, filePath)
	}
	if response.StatusCode != http.StatusOK {
		response.Body.Close()
		return nil, 0, fmt.Errorf("%w: downloading %s: status %d", ErrUpstream, filePath, response.StatusCode)
	}
	return response.Body, response.ContentLength, nil
}

// withoutURL drops the request URL of a transport error, since every Bot API
// URL carries the bot token.
func withoutURL(err error) error {
	var urlError *url.Error
	if !errors.As(err, &urlError) {
		return err
	}
	return fmt.Errorf("%s: %w", urlError.Op, urlError.Err)
}

type countingReader struct {
	reader   io.Reader
	limit    int64
	count    int64
	exceeded bool
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.count += int64(n)
	if r.limit > 0 && r.count > r.limit {
		r.exceeded = true
		return n, errors.New("upload size limit exceeded")
	}
	return n, err
}

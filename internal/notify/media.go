package notify

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tg_funnel_bot/internal/logging"
)

// Media settings hold either a full URL or a path produced by the upload
// endpoint. URLs are passed through to Telegram; local files are streamed as
// uploads. Any failure falls back to a plain text message so a broken media
// reference never blocks the funnel.

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

func (d *Dispatcher) sendWithMedia(ctx context.Context, chatID int64, media, caption string, markup *models.InlineKeyboardMarkup) error {
	if media == "" {
		return d.send(ctx, chatID, caption, markup)
	}

	if err := d.sendMedia(ctx, chatID, media, caption, markup); err != nil {
		d.logger.WithFields(logging.Fields{
			"event": "media_send_failed",
			"media": media,
		}).WithError(err).Warn("falling back to text message")
		return d.send(ctx, chatID, caption, markup)
	}
	return nil
}

func (d *Dispatcher) sendMedia(ctx context.Context, chatID int64, media, caption string, markup *models.InlineKeyboardMarkup) error {
	isPhoto := photoExtensions[strings.ToLower(filepath.Ext(media))]

	if strings.HasPrefix(media, "http://") || strings.HasPrefix(media, "https://") {
		return d.sendInputFile(ctx, chatID, &models.InputFileString{Data: media}, isPhoto, caption, markup)
	}

	file, err := os.Open(d.localMediaPath(media))
	if err != nil {
		return err
	}
	defer file.Close()

	input := &models.InputFileUpload{
		Filename: filepath.Base(media),
		Data:     file,
	}
	return d.sendInputFile(ctx, chatID, input, isPhoto, caption, markup)
}

func (d *Dispatcher) sendInputFile(ctx context.Context, chatID int64, input models.InputFile, isPhoto bool, caption string, markup *models.InlineKeyboardMarkup) error {
	if isPhoto {
		params := &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   input,
			Caption: caption,
		}
		if markup != nil {
			params.ReplyMarkup = markup
		}
		_, err := d.messenger.SendPhoto(ctx, params)
		return err
	}

	params := &bot.SendVideoParams{
		ChatID:  chatID,
		Video:   input,
		Caption: caption,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	_, err := d.messenger.SendVideo(ctx, params)
	return err
}

// localMediaPath maps a stored media reference onto the upload directory.
// Upload responses record paths like "/uploads/<name>"; only the base name is
// trusted.
func (d *Dispatcher) localMediaPath(media string) string {
	return filepath.Join(d.uploadDir, filepath.Base(media))
}

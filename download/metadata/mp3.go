package metadata

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// embedMP3 embeds metadata in MP3 file.
func (e *Embedder) embedMP3(ctx context.Context, filePath string, song *Song) error {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		tag, err = id3v2.Open(filePath, id3v2.Options{Parse: false})
		if err != nil {
			return &MetadataError{Op: OpOpen, Path: filePath, Original: err}
		}
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	tag.SetTitle(song.Title)
	tag.SetArtist(song.Artist)
	if song.Album != "" {
		tag.SetAlbum(song.Album)
	}
	if song.AlbumArtist != "" {
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, song.AlbumArtist)
	}
	if song.TrackNumber > 0 {
		track := fmt.Sprintf("%d", song.TrackNumber)
		if song.TracksCount > 0 {
			track = fmt.Sprintf("%d/%d", song.TrackNumber, song.TracksCount)
		}
		tag.AddTextFrame("TRCK", id3v2.EncodingUTF8, track)
	}
	if song.DiscNumber > 0 {
		tag.AddTextFrame("TPOS", id3v2.EncodingUTF8, fmt.Sprintf("%d", song.DiscNumber))
	}
	if song.Date != "" {
		tag.AddTextFrame("TDRC", id3v2.EncodingUTF8, song.Date)
	}
	if song.ISRC != "" {
		tag.AddTextFrame("TSRC", id3v2.EncodingUTF8, song.ISRC)
	}
	if song.SpotifyURL != "" {
		tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
			Encoding:    id3v2.EncodingUTF8,
			Description: "SPOTIFY_URL",
			Value:       song.SpotifyURL,
		})
	}

	if song.CoverURL != "" {
		if data, err := e.cover(ctx, song.CoverURL); err != nil {
			log.Printf("WARN: cover_art_download_failed file=%s cover_url=%s error=%v", filePath, song.CoverURL, err)
		} else {
			tag.DeleteFrames("APIC")
			tag.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingUTF8,
				MimeType:    mimeType(data),
				PictureType: id3v2.PTFrontCover,
				Description: "Cover",
				Picture:     data,
			})
		}
	}

	if err := tag.Save(); err != nil {
		return &MetadataError{Op: OpSave, Path: filePath, Original: err}
	}
	return nil
}

func mimeType(data []byte) string {
	if len(data) > 4 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "image/jpeg"
}

// ReadArtists returns the artist and album artist credits of an MP3 file,
// split on the usual separators. Files without a tag yield nothing.
func ReadArtists(filePath string) ([]string, error) {
	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return nil, &MetadataError{Op: OpRead, Path: filePath, Original: err}
	}
	defer tag.Close()

	var names []string
	for _, value := range []string{tag.Artist(), tag.GetTextFrame("TPE2").Text} {
		names = append(names, SplitArtists(value)...)
	}
	return names, nil
}

// SplitArtists splits a credit string such as "A, B & C feat. D".
func SplitArtists(value string) []string {
	replacer := strings.NewReplacer(
		"\x00", ",", ";", ",", "/", ",", " & ", ",", " feat. ", ",", " ft. ", ",", " featuring ", ",", " x ", ",",
	)
	var out []string
	for _, part := range strings.Split(replacer.Replace(value), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"momentsstudio/internal/util"
	"momentsstudio/pkg/domain"
	"momentsstudio/pkg/galleryclient"
)

const defaultServer = "http://localhost:8086"

func main() {
	var (
		serverURL string
		token     string
		client    *galleryclient.Client
	)

	rootCmd := cobra.Command{
		Use:          "galleryctl",
		Short:        "Create wedding albums and upload photos to the gallery service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.InitLogger(os.Getenv("LOG_LEVEL"), "text")
			client = galleryclient.NewClient(serverURL, token)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("GALLERY_SERVER", defaultServer), "Gallery service base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("GALLERY_TOKEN"), "User access token")

	createCmd := cobra.Command{
		Use:   "create-album",
		Short: "Create an album with a cover photo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			couple, _ := cmd.Flags().GetString("couple")
			date, _ := cmd.Flags().GetString("date")
			coverPath, _ := cmd.Flags().GetString("cover")
			code, _ := cmd.Flags().GetString("code")
			cover, err := readUpload(coverPath)
			if err != nil {
				return err
			}
			album, err := client.CreateAlbum(cmd.Context(), couple, date, code, cover)
			if err != nil {
				return err
			}
			return printJSON(album)
		},
	}
	createCmd.Flags().String("couple", "", "Couple names, e.g. \"Sarah & James\"")
	createCmd.Flags().String("date", "", "Event date (YYYY-MM-DD)")
	createCmd.Flags().String("cover", "", "Path to the cover photo")
	createCmd.Flags().String("code", "", "Guest access code (generated when empty)")
	_ = createCmd.MarkFlagRequired("couple")
	_ = createCmd.MarkFlagRequired("date")
	_ = createCmd.MarkFlagRequired("cover")
	rootCmd.AddCommand(&createCmd)

	uploadCmd := cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload photos into an existing album",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			albumID, _ := cmd.Flags().GetString("album")
			batchSize, _ := cmd.Flags().GetInt("batch")
			uploads := make([]domain.Upload, 0, len(args))
			for _, path := range args {
				upload, err := readUpload(path)
				if err != nil {
					return err
				}
				uploads = append(uploads, upload)
			}
			stored := 0
			for i, batch := range galleryclient.Batches(uploads, batchSize) {
				photos, err := client.UploadPhotos(cmd.Context(), albumID, batch)
				if err != nil {
					return fmt.Errorf("batch %d: %w", i+1, err)
				}
				stored += len(photos)
				slog.Info("batch uploaded", "batch", i+1, "stored", len(photos), "sent", len(batch))
			}
			fmt.Printf("%d of %d photos stored\n", stored, len(uploads))
			if stored < len(uploads) {
				return fmt.Errorf("%d photos were skipped; see server logs", len(uploads)-stored)
			}
			return nil
		},
	}
	uploadCmd.Flags().String("album", "", "Album ID")
	uploadCmd.Flags().Int("batch", 50, "Photos per request")
	_ = uploadCmd.MarkFlagRequired("album")
	rootCmd.AddCommand(&uploadCmd)

	albumsCmd := cobra.Command{
		Use:   "albums",
		Short: "List albums with photo counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			albums, err := client.ListAlbums(cmd.Context())
			if err != nil {
				return err
			}
			for _, a := range albums {
				fmt.Printf("%s\t%s\t%s\t%s\t%d photos\n", a.ID, a.EventDate, a.CoupleNames, a.AccessCode, a.PhotoCount)
			}
			return nil
		},
	}
	rootCmd.AddCommand(&albumsCmd)

	accessCmd := cobra.Command{
		Use:   "access-code CODE",
		Short: "Open an album the way a guest does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := client.OpenAlbum(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(detail)
		},
	}
	rootCmd.AddCommand(&accessCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func readUpload(path string) (domain.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("read %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return domain.Upload{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

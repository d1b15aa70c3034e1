package cmd

import (
	"context"
	"fmt"
	"time"

	"pitwall/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理存储桶中归档的车队无线电音频，支持列出文件、查看统计信息和按前缀删除。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		archive, err := storage.NewAudioArchive(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}

		switch {
		case minioDelete:
			if minioPrefix == "" {
				return fmt.Errorf("删除操作需要指定目录前缀")
			}
			n, err := archive.DeletePrefix(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败: %w", err)
			}
			fmt.Printf("已删除 %d 个对象 (前缀: %s)\n", n, minioPrefix)
		case minioStats:
			stats, err := archive.Stats(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("获取存储桶统计信息失败: %w", err)
			}
			fmt.Printf("对象数量: %d\n", stats.TotalObjects)
			fmt.Printf("总大小:   %s\n", humanize.Bytes(uint64(stats.TotalSize)))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改: %s\n", humanize.Time(stats.LastModified))
			}
		default:
			objects, err := archive.List(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("列出文件失败: %w", err)
			}
			for _, obj := range objects {
				fmt.Printf("%-10s  %-16s  %s\n", humanize.Bytes(uint64(obj.Size)), humanize.Time(obj.LastModified), obj.Key)
			}
			fmt.Printf("共 %d 个对象\n", len(objects))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "radio/", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定前缀下的所有文件")

	minioCmd.Example = `  # 列出归档的无线电音频
  pitwall minio

  # 某个赛季的统计信息
  pitwall minio -s -p "radio/2023/"

  # 删除某站的音频
  pitwall minio -d -p "radio/2023/2023-05-28_Monaco_Grand_Prix/"`
}

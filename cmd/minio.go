package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"ncmc/storage"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理存放解码音频的MinIO存储桶，支持列出文件、查看统计信息、删除目录。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.NewMinioClient(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.MinioRegion,
			cfg.MinioUseSSL,
		)
		if err != nil {
			log.Fatalf("创建MinIO客户端失败: %v", err)
		}
		ctx := cmd.Context()

		if minioDelete {
			if minioPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s\n", minioPrefix)
			n, err := client.DeletePrefix(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("删除目录失败: %v", err)
			}
			fmt.Printf("已删除 %d 个对象\n", n)
			return
		}

		objects, stats, err := client.List(ctx, minioPrefix)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}
		if minioStats {
			fmt.Printf("\n存储桶 %s 统计信息:\n", client.Bucket())
			fmt.Printf("  对象数量: %d\n", stats.TotalObjects)
			fmt.Printf("  总大小:   %s\n", storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("  最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}
			return
		}

		fmt.Printf("\n存储桶中的文件 (前缀: %q):\n", minioPrefix)
		for _, obj := range objects {
			fmt.Printf("  %-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("\n共 %d 个文件，%s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "tracks/", "对象前缀")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除前缀下的所有对象")
	rootCmd.AddCommand(minioCmd)
}

package deploy

import (
	"strconv"
	"strings"
)

// wp-cli argument lists. run.wp quotes every argument before it reaches the remote shell.

func flag(name, value string) string {
	return "--" + name + "=" + value
}

func argsCLIVersion() []string { return []string{"cli", "version"} }

func argsCoreIsInstalled() []string { return []string{"core", "is-installed"} }

func argsCoreVersion() []string { return []string{"core", "version"} }

func argsCoreDownload() []string { return []string{"core", "download"} }

func argsConfigPath() []string { return []string{"config", "path"} }

func argsConfigCreate(c *CoreInstall) []string {
	args := []string{
		"config", "create",
		flag("dbname", c.DBName),
		flag("dbuser", c.DBUser),
		flag("dbpass", c.DBPassword),
	}
	if c.DBHost != "" {
		args = append(args, flag("dbhost", c.DBHost))
	}
	return args
}

func argsCoreInstall(url string, c *CoreInstall) []string {
	return []string{
		"core", "install",
		flag("url", url),
		flag("title", c.Title),
		flag("admin_user", c.AdminUser),
		flag("admin_password", c.AdminPassword),
		flag("admin_email", c.AdminEmail),
		"--skip-email",
	}
}

func argsThemeInstall(slug string) []string {
	return []string{"theme", "install", slug, "--activate"}
}

func argsPluginInstall(slug string) []string {
	return []string{"plugin", "install", slug, "--activate"}
}

func argsPostCreate(it item) []string {
	args := []string{
		"post", "create",
		flag("post_type", it.postType()),
		flag("post_status", "publish"),
		flag("post_name", it.slug),
		flag("post_title", it.title),
		flag("post_content", it.body),
	}
	if it.excerpt != "" {
		args = append(args, flag("post_excerpt", it.excerpt))
	}
	if it.order != 0 {
		args = append(args, flag("menu_order", strconv.Itoa(it.order)))
	}
	return append(args, "--porcelain")
}

func argsPageID(slug string) []string {
	return []string{"post", "list", "--post_type=page", flag("name", slug), "--field=ID", "--posts_per_page=1"}
}

func argsMenuCreate(name string) []string {
	return []string{"menu", "create", name, "--porcelain"}
}

func argsMenuAddPost(menuID string, postID int, label string) []string {
	return []string{"menu", "item", "add-post", menuID, strconv.Itoa(postID), flag("title", label)}
}

func argsMenuAssign(menuID, location string) []string {
	return []string{"menu", "location", "assign", menuID, location}
}

func argsRewriteStructure(permalink string) []string {
	return []string{"rewrite", "structure", permalink, "--hard"}
}

func argsOptionUpdate(name, value string) []string {
	return []string{"option", "update", name, value}
}

// firstLine returns the first non-empty line of command output.
func firstLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

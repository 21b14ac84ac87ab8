package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plugrail/plugrail/internal/engine/constant"
	httpx "github.com/plugrail/plugrail/pkg/http"
)

/**
 * @file: router_plugin_task.go
 * @description: 插件安装任务查询与清理
 */

func (rt *Router) pluginTaskRouter(r fiber.Router, auth fiber.Handler) {
	tasks := r.Group("/tasks", auth)
	{
		tasks.Get("", rt.listInstallTasks)
		tasks.Post("/delete_all", rt.deleteAllInstallTasks)
		tasks.Get("/:taskId", rt.getInstallTask)
		tasks.Delete("/:taskId", rt.deleteInstallTask)
		tasks.Post("/:taskId/delete_plugin", rt.deleteInstallTaskItem)
	}
}

// listInstallTasks 任务列表，按创建时间倒序
func (rt *Router) listInstallTasks(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)

	tasks, total, err := rt.TaskService.ListTasks(tenantFrom(c), page, pageSize)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"tasks": tasks, "total": total})
	return nil
}

// getInstallTask 查询单个任务
func (rt *Router) getInstallTask(c *fiber.Ctx) error {
	task, err := rt.TaskService.GetTask(tenantFrom(c), c.Params("taskId"))
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, task)
	return nil
}

// deleteInstallTask 删除任务，幂等
func (rt *Router) deleteInstallTask(c *fiber.Ctx) error {
	ok, err := rt.TaskService.DeleteTask(tenantFrom(c), c.Params("taskId"))
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"success": ok})
	return nil
}

// deleteAllInstallTasks 清空租户全部任务
func (rt *Router) deleteAllInstallTasks(c *fiber.Ctx) error {
	deleted, err := rt.TaskService.DeleteAllTasks(tenantFrom(c))
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"success": true, "deleted": deleted})
	return nil
}

// deleteInstallTaskItem 从任务中移除单个插件项
func (rt *Router) deleteInstallTaskItem(c *fiber.Ctx) error {
	var req struct {
		PluginUniqueIdentifier string `json:"plugin_unique_identifier"`
	}
	if err := c.BodyParser(&req); err != nil || req.PluginUniqueIdentifier == "" {
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "plugin_unique_identifier is required", c.Path())
	}
	ok, err := rt.TaskService.DeleteTaskItem(tenantFrom(c), c.Params("taskId"), req.PluginUniqueIdentifier)
	if err != nil {
		return repPluginErr(c, err)
	}
	c.Locals(constant.DETAIL, fiber.Map{"success": ok})
	return nil
}
